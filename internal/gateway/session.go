package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vanityracer/sniper/internal/config"
	"github.com/vanityracer/sniper/internal/watch"
)

const writeTimeout = 10 * time.Second

// Watcher receives the decoded dispatch events a session routes.
type Watcher interface {
	Snapshot(resources []watch.Resource)
	Update(id, alias string)
	Remove(id string)
	Resumed()
}

// CredentialStore invalidates credentials the gateway rejects permanently.
type CredentialStore interface {
	Invalidate(token string)
}

// Session owns one logical gateway connection for one credential: dial,
// identify/resume, heartbeat, dispatch routing, reconnect with linear
// backoff, teardown. All mutable state is guarded by mu because the
// heartbeat, greeting-wait and redial timers fire on their own goroutines;
// frame handling itself is strictly sequential on the read goroutine.
type Session struct {
	cfg     config.GatewayConfig
	ident   config.IdentifyConfig
	token   string
	label   string
	watcher Watcher
	creds   CredentialStore
	dialer  *websocket.Dialer

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	sessionID   string
	seq         int64
	hbInterval  time.Duration
	lastAck     time.Time
	attempts    int
	connectedAt time.Time
	stopped     bool

	// Timer handles are always stopped before replacement so a superseded
	// timer can never fire against a stale socket.
	helloTimer  *time.Timer
	hbTimer     *time.Timer
	redialTimer *time.Timer

	// writeMu serialises all conn writes (heartbeat timer vs read goroutine).
	writeMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once

	now func() time.Time
}

func NewSession(cfg config.GatewayConfig, ident config.IdentifyConfig, token string, watcher Watcher, creds CredentialStore) *Session {
	return &Session{
		cfg:     cfg,
		ident:   ident,
		token:   token,
		label:   fingerprint(token),
		watcher: watcher,
		creds:   creds,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HelloTimeout.Std()},
		state:   Idle,
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Run dials the gateway and blocks until the session stops permanently:
// deliberate Stop, invalidated credentials, retry ceiling, or context end.
func (s *Session) Run(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	s.dial(ctx)
	<-s.done
}

// Stop tears the session down deliberately. The close path recognises the
// teardown and does not retry.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	conn := s.conn
	s.stopTimerLocked(&s.helloTimer)
	s.stopTimerLocked(&s.hbTimer)
	s.stopTimerLocked(&s.redialTimer)
	s.mu.Unlock()

	if conn == nil {
		s.finish()
		return
	}
	s.closeConn(conn, websocket.CloseNormalClosure, "client shutdown")
}

func (s *Session) dial(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts
	s.state = Connecting
	s.mu.Unlock()

	log.Printf("[%s] gateway: dialing (attempt %d)", s.label, attempt)
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		log.Printf("[%s] gateway: dial failed: %v", s.label, err)
		s.scheduleRedial(ctx)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		s.finish()
		return
	}
	s.conn = conn
	s.state = Connected
	s.connectedAt = s.now()
	// Bounded wait for the server greeting.
	s.stopTimerLocked(&s.helloTimer)
	s.helloTimer = time.AfterFunc(s.cfg.HelloTimeout.Std(), func() { s.helloTimeout(conn) })
	// Resume eligibility is decided exactly at open time, against the
	// previous session identifier.
	resume := s.canResumeLocked()
	s.mu.Unlock()

	if resume {
		s.sendResume(conn)
	} else {
		s.sendIdentify(conn)
	}

	go s.readLoop(ctx, conn)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(ctx, conn, err)
			return
		}
		s.handleFrame(ctx, conn, data)
	}
}

// handleFrame decodes and routes one frame. Any panic or decode failure is
// contained here: the frame is dropped and the session keeps running.
func (s *Session) handleFrame(ctx context.Context, conn *websocket.Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] gateway: recovered from frame handler panic: %v", s.label, r)
		}
	}()

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("[%s] gateway: dropping undecodable frame: %v", s.label, err)
		return
	}

	s.mu.Lock()
	// The first valid server frame settles the bounded greeting wait.
	s.stopTimerLocked(&s.helloTimer)
	// Sequence bookkeeping happens before opcode handling, for every opcode
	// that carries one.
	if f.S != nil {
		s.seq = *f.S
	}
	s.mu.Unlock()

	switch f.Op {
	case opHello:
		s.handleHello(conn, f.D)

	case opHeartbeatAck:
		s.mu.Lock()
		s.lastAck = s.now()
		s.mu.Unlock()

	case opHeartbeat:
		// Server asked for an immediate beat.
		s.sendHeartbeat(conn)

	case opInvalidSession:
		s.handleInvalidSession(conn, f.D)

	case opReconnect:
		s.handleReconnect(ctx, conn)

	case opDispatch:
		s.handleDispatch(f)

	default:
		log.Printf("[%s] gateway: ignoring opcode %d", s.label, f.Op)
	}
}

func (s *Session) handleHello(conn *websocket.Conn, d json.RawMessage) {
	var hello helloPayload
	if err := json.Unmarshal(d, &hello); err != nil {
		log.Printf("[%s] gateway: bad hello payload: %v", s.label, err)
		return
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	s.mu.Lock()
	s.hbInterval = interval
	s.stopTimerLocked(&s.hbTimer)
	s.hbTimer = time.AfterFunc(interval, func() { s.heartbeatTick(conn) })
	s.mu.Unlock()

	log.Printf("[%s] gateway: hello, heartbeating every %s", s.label, interval)
}

// heartbeatTick sends one heartbeat and re-arms the timer, as long as conn
// is still the session's current socket.
func (s *Session) heartbeatTick(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn || s.stopped {
		s.mu.Unlock()
		return
	}
	state := s.state
	interval := s.hbInterval
	s.hbTimer = time.AfterFunc(interval, func() { s.heartbeatTick(conn) })
	s.mu.Unlock()

	if state == Connecting {
		// No socket ready for this beat.
		return
	}
	s.sendHeartbeat(conn)
}

func (s *Session) sendHeartbeat(conn *websocket.Conn) {
	s.mu.Lock()
	seq := s.seq
	s.mu.Unlock()

	if err := s.send(conn, opHeartbeat, seq); err != nil {
		log.Printf("[%s] gateway: heartbeat send failed: %v", s.label, err)
	}
}

func (s *Session) sendIdentify(conn *websocket.Conn) {
	s.mu.Lock()
	s.state = Identifying
	s.seq = 0
	s.sessionID = ""
	s.mu.Unlock()

	log.Printf("[%s] gateway: identifying", s.label)
	p := identifyPayload{
		Token: s.token,
		Properties: identifyProperties{
			OS:      s.ident.OS,
			Browser: s.ident.Browser,
			Device:  s.ident.Device,
		},
	}
	if err := s.send(conn, opIdentify, p); err != nil {
		log.Printf("[%s] gateway: identify send failed: %v", s.label, err)
	}
}

func (s *Session) sendResume(conn *websocket.Conn) {
	s.mu.Lock()
	s.state = Resuming
	sid := s.sessionID
	seq := s.seq
	s.mu.Unlock()

	log.Printf("[%s] gateway: resuming session %s at seq %d", s.label, sid, seq)
	if err := s.send(conn, opResume, resumePayload{Token: s.token, SessionID: sid, Seq: seq}); err != nil {
		log.Printf("[%s] gateway: resume send failed: %v", s.label, err)
	}
}

func (s *Session) handleInvalidSession(conn *websocket.Conn, d json.RawMessage) {
	var resumable bool
	if err := json.Unmarshal(d, &resumable); err != nil {
		resumable = false
	}

	s.mu.Lock()
	hasSession := s.sessionID != ""
	s.mu.Unlock()

	log.Printf("[%s] gateway: session invalidated (resumable=%v)", s.label, resumable)
	if resumable && hasSession {
		s.sendResume(conn)
	} else {
		s.sendIdentify(conn)
	}
}

// handleReconnect tears the socket down on the server's request and re-dials
// immediately. The teardown initiator owns the re-dial: the connection is
// detached from the session first, so the read goroutine's close handling
// sees a stale socket and stands down instead of scheduling backoff.
func (s *Session) handleReconnect(ctx context.Context, conn *websocket.Conn) {
	log.Printf("[%s] gateway: server requested reconnect", s.label)

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.state = Disconnected
	s.stopTimerLocked(&s.helloTimer)
	s.stopTimerLocked(&s.hbTimer)
	s.mu.Unlock()

	s.closeConn(conn, closeRedial, "reconnect requested")
	go s.dial(ctx)
}

func (s *Session) handleDispatch(f frame) {
	switch f.T {
	case eventReady:
		var p readyPayload
		if err := json.Unmarshal(f.D, &p); err != nil {
			log.Printf("[%s] gateway: bad READY payload: %v", s.label, err)
			return
		}
		s.mu.Lock()
		s.sessionID = p.SessionID
		s.state = Connected
		s.attempts = 0
		opened := s.connectedAt
		s.mu.Unlock()

		resources := make([]watch.Resource, 0, len(p.Guilds))
		for _, g := range p.Guilds {
			resources = append(resources, watch.Resource{ID: g.ID, Alias: g.alias()})
		}
		log.Printf("[%s] gateway: ready as %s with %d guild(s), %s after open",
			s.label, p.User.Username, len(p.Guilds), s.now().Sub(opened).Round(time.Millisecond))
		s.watcher.Snapshot(resources)

	case eventResumed:
		s.mu.Lock()
		s.state = Connected
		s.attempts = 0
		s.mu.Unlock()
		s.watcher.Resumed()

	case eventGuildCreate:
		var g guildPayload
		if err := json.Unmarshal(f.D, &g); err != nil {
			log.Printf("[%s] gateway: bad GUILD_CREATE payload: %v", s.label, err)
			return
		}
		if !g.Unavailable && g.alias() != "" {
			s.watcher.Update(g.ID, g.alias())
		}

	case eventGuildUpdate:
		var g guildPayload
		if err := json.Unmarshal(f.D, &g); err != nil {
			log.Printf("[%s] gateway: bad GUILD_UPDATE payload: %v", s.label, err)
			return
		}
		s.watcher.Update(g.ID, g.alias())

	case eventGuildDelete:
		var g guildPayload
		if err := json.Unmarshal(f.D, &g); err != nil {
			log.Printf("[%s] gateway: bad GUILD_DELETE payload: %v", s.label, err)
			return
		}
		s.watcher.Remove(g.ID)

	default:
		// Every other dispatch is irrelevant to alias tracking.
	}
}

// helloTimeout fires when no greeting arrived inside the bounded wait. The
// socket is closed with a diagnostic reason; the close path takes over.
func (s *Session) helloTimeout(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	log.Printf("[%s] gateway: no greeting within %s, closing socket", s.label, s.cfg.HelloTimeout)
	s.closeConn(conn, websocket.ClosePolicyViolation, "no hello before deadline")
}

// handleDisconnect applies the close policy for a socket the read goroutine
// lost. Stale sockets (already superseded by a reconnect) are ignored.
func (s *Session) handleDisconnect(ctx context.Context, conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = Disconnected
	s.stopTimerLocked(&s.helloTimer)
	s.stopTimerLocked(&s.hbTimer)
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		s.finish()
		return
	}

	if closeCode(err) == closeAuthFailed {
		log.Printf("[%s] gateway: credentials rejected, invalidating token", s.label)
		s.creds.Invalidate(s.token)
		s.finish()
		return
	}

	log.Printf("[%s] gateway: connection lost: %v", s.label, err)
	s.scheduleRedial(ctx)
}

// scheduleRedial applies the linear backoff policy: attempts-so-far seconds
// of delay, a permanent stop at the ceiling, and an eligibility re-check
// right before the delayed dial actually fires.
func (s *Session) scheduleRedial(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.finish()
		return
	}
	if s.attempts >= s.cfg.MaxReconnects {
		attempts := s.attempts
		s.mu.Unlock()
		log.Printf("[%s] gateway: retry ceiling reached after %d dial(s), stopping", s.label, attempts)
		s.finish()
		return
	}

	delay := backoffDelay(s.attempts)
	log.Printf("[%s] gateway: redialing in %s", s.label, delay)
	s.stopTimerLocked(&s.redialTimer)
	s.redialTimer = time.AfterFunc(delay, func() {
		// A concurrent successful connection may have arrived meanwhile.
		s.mu.Lock()
		if s.conn != nil || s.stopped {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.dial(ctx)
	})
	s.mu.Unlock()
}

// canResumeLocked is the resume-eligibility rule: a saved session identifier
// and either no heartbeat ack yet or one inside the freshness window.
func (s *Session) canResumeLocked() bool {
	if s.sessionID == "" {
		return false
	}
	if s.lastAck.IsZero() {
		return true
	}
	return s.now().Sub(s.lastAck) <= s.cfg.ResumeWindow.Std()
}

func (s *Session) send(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(frame{Op: op, D: raw})
}

func (s *Session) closeConn(conn *websocket.Conn, code int, reason string) {
	s.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	conn.Close()
}

func (s *Session) stopTimerLocked(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// backoffDelay is the linear reconnect backoff: attempts-so-far seconds.
func backoffDelay(attempts int) time.Duration {
	return time.Duration(attempts) * time.Second
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

func fingerprint(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
