package health

import (
	"context"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Reporter logs a periodic self-stats line (memory, CPU, goroutines,
// uptime) so long-running deployments leave a trail in the logs.
type Reporter struct {
	interval time.Duration
	proc     *process.Process
	started  time.Time
}

func NewReporter(interval time.Duration) *Reporter {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Self-inspection failing is not worth refusing to start over.
		log.Printf("health: cannot inspect own process: %v", err)
		proc = nil
	}
	return &Reporter{
		interval: interval,
		proc:     proc,
		started:  time.Now(),
	}
}

// Run reports until the context ends. A zero or negative interval disables
// reporting.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	uptime := time.Since(r.started).Round(time.Second)
	if r.proc == nil {
		log.Printf("health: goroutines=%d uptime=%s", runtime.NumGoroutine(), uptime)
		return
	}

	var rssMiB uint64
	if mem, err := r.proc.MemoryInfo(); err == nil && mem != nil {
		rssMiB = mem.RSS >> 20
	}
	cpu, _ := r.proc.CPUPercent()

	log.Printf("health: rss=%dMiB cpu=%.1f%% goroutines=%d uptime=%s",
		rssMiB, cpu, runtime.NumGoroutine(), uptime)
}
