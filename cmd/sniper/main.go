package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"github.com/vanityracer/sniper/internal/claim"
	"github.com/vanityracer/sniper/internal/config"
	"github.com/vanityracer/sniper/internal/gateway"
	"github.com/vanityracer/sniper/internal/health"
	"github.com/vanityracer/sniper/internal/notify"
	"github.com/vanityracer/sniper/internal/rest"
	"github.com/vanityracer/sniper/internal/tokens"
	"github.com/vanityracer/sniper/internal/watch"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	// Optional .env overlay for anything the environment should supply.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lock, err := acquireInstanceLock()
	if err != nil {
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	defer lock.Unlock()

	store := tokens.NewStore(cfg.Tokens.ValidFile, cfg.Tokens.InvalidFile)
	if err := store.Load(); err != nil {
		log.Fatalf("Failed to load tokens: %v", err)
	}
	creds := store.All()
	if len(creds) == 0 {
		log.Fatalf("No valid tokens in %s", cfg.Tokens.ValidFile)
	}

	pool := claim.NewPool(cfg.Claim.Targets, cfg.Claim.Rotate)
	sink := notify.NewWebhook(cfg.Notify.WebhookURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go health.NewReporter(cfg.Health.ReportInterval.Std()).Run(ctx)

	log.Printf("Starting %d session(s), %d claim target(s), rotate=%v",
		len(creds), pool.Remaining(), cfg.Claim.Rotate)

	var wg sync.WaitGroup
	for _, token := range creds {
		label := token
		if len(label) > 8 {
			label = label[:8]
		}

		api := rest.NewClient(cfg.Claim.APIBase, token, cfg.Identify)
		set := watch.NewSet(cfg.Claim.Ignore, label)
		racer := claim.NewRacer(claim.Options{
			Retries:        cfg.Claim.Retries,
			Cooldown:       cfg.Claim.Cooldown.Std(),
			StopAfterFirst: cfg.Claim.StopAfterFirst,
		}, pool, api, sink, set, label)
		set.OnVacated(func(candidate, origin string) {
			racer.Attempt(ctx, candidate, origin)
		})

		session := gateway.NewSession(cfg.Gateway, cfg.Identify, token, set, store)

		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Run(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	wg.Wait()
	// Every session stopped on its own terms (teardown, invalid credentials
	// or retry ceiling). Either way the work is done, not failed.
	log.Println("All sessions stopped")
}

func acquireInstanceLock() (*flock.Flock, error) {
	lock := flock.New(filepath.Join(os.TempDir(), "vanityracer-sniper.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		log.Fatalf("Another sniper instance is already running")
	}
	return lock, nil
}
