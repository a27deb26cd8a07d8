package connection

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
)

// eventKind tags the events consumed by the manager's loop.
type eventKind int

const (
	evOpened eventKind = iota // dial finished successfully
	evClosed                  // dial failed, or an open transport ended
	evFrame                   // inbound frame
	evRetry                   // reconnect delay elapsed
)

// loopEvent is the single message type on the loop channel. gen identifies
// the transport attempt the event belongs to.
type loopEvent struct {
	kind eventKind
	gen  uint64
	msg  TimestampedMessage
	err  error
}

// attempt is one transport instance.
type attempt struct {
	gen     uint64
	session string
	client  Client
	stop    chan struct{} // closed when the attempt is retired
	logger  *slog.Logger
}

// StatusListener is notified of every status transition.
type StatusListener func(old, new Status)

// Manager owns the single realtime connection and its reconnection policy.
type Manager interface {
	// Start opens the first connection and begins processing events.
	Start(ctx context.Context) error

	// Stop closes the live connection and cancels any pending reconnect.
	Stop(ctx context.Context) error

	// Status returns the current connection status.
	Status() Status

	// RetryCount returns consecutive failed attempts since the last open.
	RetryCount() int

	// Registry returns the registry frames are dispatched to.
	Registry() *router.Registry

	// OnStatusChange registers fn for status transitions.
	OnStatusChange(fn StatusListener) (unsubscribe func())

	// Stats returns current statistics.
	Stats() ManagerStats
}

// manager implements the Manager interface.
//
// All connection state is mutated by one goroutine (the loop). Transport
// callbacks and the retry timer only post events to the loop.
type manager struct {
	cfg       ManagerConfig
	registry  *router.Registry
	logger    *slog.Logger
	newClient ClientFactory

	events chan loopEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Published state
	mu         sync.RWMutex
	status     Status
	retryCount int
	started    bool
	closed     bool

	listenersMu  sync.RWMutex
	listeners    map[uint64]StatusListener
	nextListener uint64

	// Stats
	attempts    atomic.Int64
	opens       atomic.Int64
	frames      atomic.Int64
	parseErrors atomic.Int64
	panics      atomic.Int64 // status listener panics

	// Loop-owned state
	gen        uint64
	current    *attempt    // transport being dialed or open; nil while waiting to retry
	retryTimer *time.Timer // pending reconnect
	terminal   bool        // retries exhausted
}

// NewManager creates a Connection Manager. Frames are dispatched to registry.
func NewManager(cfg ManagerConfig, registry *router.Registry, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = router.NewRegistry(logger)
	}
	newClient := cfg.NewClient
	if newClient == nil {
		newClient = NewClient
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &manager{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		newClient: newClient,
		events:    make(chan loopEvent, 64),
		status:    StatusConnecting,
		listeners: make(map[uint64]StatusListener),
	}
}

// Start opens the first connection and begins processing events.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop()

	m.logger.Info("connection manager started",
		"url", m.cfg.Client.URL,
		"max_retries", m.cfg.MaxRetries,
		"retry_delay", m.cfg.RetryDelay,
	)
	return nil
}

// Stop closes the live connection, cancels any pending reconnect and waits
// for the manager's goroutines. Safe to call more than once. Must not be
// called from a registry handler or status listener.
func (m *manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	if !started {
		m.setStatus(StatusDisconnected)
		return nil
	}

	m.logger.Info("stopping connection manager")
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
		return ctx.Err()
	}
	return nil
}

// Status returns the current connection status.
func (m *manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// RetryCount returns consecutive failed attempts since the last successful open.
func (m *manager) RetryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryCount
}

// Registry returns the registry frames are dispatched to.
func (m *manager) Registry() *router.Registry {
	return m.registry
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	status, retries := m.status, m.retryCount
	m.mu.RUnlock()

	return ManagerStats{
		Status:         status,
		RetryCount:     retries,
		Attempts:       m.attempts.Load(),
		Opens:          m.opens.Load(),
		Frames:         m.frames.Load(),
		ParseErrors:    m.parseErrors.Load(),
		ListenerPanics: m.panics.Load(),
	}
}

// OnStatusChange registers fn for status transitions. Listeners run on the
// manager's loop and must not block.
func (m *manager) OnStatusChange(fn StatusListener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.listenersMu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// loop is the only goroutine that touches loop-owned state.
func (m *manager) loop() {
	defer m.wg.Done()

	m.connect()

	for {
		select {
		case <-m.ctx.Done():
			m.teardown()
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *manager) handle(ev loopEvent) {
	switch ev.kind {
	case evOpened:
		if m.current == nil || ev.gen != m.current.gen {
			return
		}
		m.handleOpen()

	case evClosed:
		// Only the first close of the live attempt counts; later reports
		// for the same or an older attempt are duplicates.
		if m.current == nil || ev.gen != m.current.gen {
			m.logger.Debug("ignoring stale close", "gen", ev.gen, "error", ev.err)
			return
		}
		m.handleClose(ev.err)

	case evFrame:
		if m.current == nil || ev.gen != m.current.gen {
			return
		}
		m.handleMessage(ev.msg)

	case evRetry:
		if m.retryTimer == nil || m.current != nil || m.terminal || ev.gen != m.gen {
			return
		}
		m.retryTimer = nil
		m.connect()
	}
}

// connect creates a new transport and dials it in the background. The
// outcome arrives on the loop as evOpened or evClosed.
func (m *manager) connect() {
	m.gen++
	session := uuid.NewString()
	logger := m.logger.With("session", session, "gen", m.gen)

	a := &attempt{
		gen:     m.gen,
		session: session,
		client:  m.newClient(m.cfg.Client, logger),
		stop:    make(chan struct{}),
		logger:  logger,
	}
	m.current = a
	m.attempts.Add(1)

	logger.Debug("connecting", "url", m.cfg.Client.URL, "retry", m.RetryCount())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		err := a.client.Connect(m.ctx)
		ev := loopEvent{kind: evOpened, gen: a.gen}
		if err != nil {
			ev = loopEvent{kind: evClosed, gen: a.gen, err: err}
		}
		if !m.post(ev) {
			a.client.Close()
		}
	}()
}

// handleOpen marks the live attempt connected and starts forwarding its frames.
func (m *manager) handleOpen() {
	a := m.current
	m.opens.Add(1)

	m.mu.Lock()
	m.retryCount = 0
	m.mu.Unlock()
	m.setStatus(StatusConnected)

	a.logger.Info("realtime connection open")

	m.wg.Add(1)
	go m.pump(a)
}

// handleClose applies the retry policy. Every close consumes one attempt;
// clean and error closes are treated alike.
func (m *manager) handleClose(err error) {
	a := m.current
	m.current = nil
	m.retire(a)

	retries := m.RetryCount()
	if retries < m.cfg.MaxRetries {
		retries++
		m.mu.Lock()
		m.retryCount = retries
		m.mu.Unlock()
		m.setStatus(StatusConnecting)

		a.logger.Warn("realtime connection closed, scheduling reconnect",
			"error", err,
			"retry", retries,
			"max_retries", m.cfg.MaxRetries,
			"delay", m.cfg.RetryDelay,
		)

		gen := m.gen
		m.retryTimer = time.AfterFunc(m.cfg.RetryDelay, func() {
			m.post(loopEvent{kind: evRetry, gen: gen})
		})
		return
	}

	m.terminal = true
	m.setStatus(StatusDisconnected)
	a.logger.Error("realtime connection closed, reconnect attempts exhausted",
		"error", err,
		"max_retries", m.cfg.MaxRetries,
	)
}

// handleMessage decodes one frame and dispatches it synchronously.
// Malformed frames are logged and dropped without touching connection state.
func (m *manager) handleMessage(msg TimestampedMessage) {
	m.frames.Add(1)

	ev, err := router.Decode(msg.Data)
	if err != nil {
		m.parseErrors.Add(1)
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(msg.Data))
		return
	}

	m.registry.Dispatch(ev)
}

// pump forwards one attempt's frames and terminal error to the loop.
func (m *manager) pump(a *attempt) {
	defer m.wg.Done()

	for {
		select {
		case <-a.stop:
			return
		case <-m.ctx.Done():
			return
		case msg := <-a.client.Messages():
			if !m.post(loopEvent{kind: evFrame, gen: a.gen, msg: msg}) {
				return
			}
		case err := <-a.client.Errors():
			// Deliver frames read before the failure ahead of the close.
			for drained := false; !drained; {
				select {
				case msg := <-a.client.Messages():
					if !m.post(loopEvent{kind: evFrame, gen: a.gen, msg: msg}) {
						return
					}
				default:
					drained = true
				}
			}
			m.post(loopEvent{kind: evClosed, gen: a.gen, err: err})
			return
		}
	}
}

// post hands an event to the loop. Returns false once the manager is stopping.
func (m *manager) post(ev loopEvent) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// retire releases an attempt's transport and stops its pump.
func (m *manager) retire(a *attempt) {
	if a == nil {
		return
	}
	close(a.stop)
	if err := a.client.Close(); err != nil {
		a.logger.Debug("error closing transport", "error", err)
	}
}

// teardown runs on the loop when the manager is stopped.
func (m *manager) teardown() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.retire(m.current)
	m.current = nil
	m.setStatus(StatusDisconnected)
}

// setStatus publishes a new status and notifies listeners on change.
func (m *manager) setStatus(s Status) {
	m.mu.Lock()
	old := m.status
	m.status = s
	m.mu.Unlock()

	if old == s {
		return
	}

	m.logger.Debug("status changed", "from", old, "to", s)

	m.listenersMu.RLock()
	listeners := make([]StatusListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenersMu.RUnlock()

	for _, fn := range listeners {
		m.notify(fn, old, s)
	}
}

// notify runs one listener, recovering any panic so the loop keeps running.
func (m *manager) notify(fn StatusListener, old, s Status) {
	defer func() {
		if rec := recover(); rec != nil {
			m.panics.Add(1)
			m.logger.Error("status listener panicked",
				"from", old,
				"to", s,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(old, s)
}
