package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/cardio-intake/internal/compliance"
	"github.com/wolfman30/cardio-intake/internal/mailto"
	"github.com/wolfman30/cardio-intake/internal/notify"
	"github.com/wolfman30/cardio-intake/internal/observability/metrics"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// ErrSessionNotFound is returned for IDs the registry does not hold.
var ErrSessionNotFound = errors.New("intake: session not found")

// DefaultSessionTTL is how long an idle session is kept in memory.
const DefaultSessionTTL = 2 * time.Hour

// ReceptionNotifier sends the PHI-free heads-up to the clinic.
type ReceptionNotifier interface {
	NotifyIntakeGenerated(ctx context.Context, notice notify.IntakeNotice) error
}

// SessionsConfig wires the registry.
type SessionsConfig struct {
	Drafts       DraftStore
	Generator    Generator
	Composer     *mailto.Composer
	Notifier     ReceptionNotifier
	Auditor      Auditor
	Metrics      *metrics.IntakeMetrics
	Logger       *logging.Logger
	SaveInterval time.Duration
	TTL          time.Duration
	Now          func() time.Time
}

// Session is one mounted wizard.
type Session struct {
	ID      string
	ctrl    *Controller
	handoff *handoff

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
}

// Controller returns the session's wizard controller.
func (s *Session) Controller() *Controller {
	return s.ctrl
}

// Reference is the short, non-identifying code quoted to reception.
func (s *Session) Reference() string {
	return reference(s.ID)
}

// Handoff returns what the last Generate produced and clears it.
func (s *Session) Handoff() HandoffResult {
	return s.handoff.take()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// stop ends the autosave loop, which flushes once on the way out.
func (s *Session) stop() {
	s.cancel()
	<-s.done
}

// Sessions keeps the live wizards for this process.
type Sessions struct {
	cfg SessionsConfig

	mu       sync.Mutex
	sessions map[string]*Session
	notices  sync.WaitGroup
}

// NewSessions validates cfg and returns an empty registry.
func NewSessions(cfg SessionsConfig) (*Sessions, error) {
	if cfg.Drafts == nil {
		return nil, errors.New("intake: sessions require a draft store")
	}
	if cfg.Generator == nil {
		return nil, errors.New("intake: sessions require a generator")
	}
	if cfg.Composer == nil {
		return nil, errors.New("intake: sessions require a mail composer")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = DefaultSaveInterval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sessions{cfg: cfg, sessions: make(map[string]*Session)}, nil
}

// Open mounts a new wizard. An empty id gets a fresh one; a known id (from a
// still-valid token after a restart) resumes from its draft.
func (r *Sessions) Open(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	logger := r.cfg.Logger.With("session_id", id)
	store := NewStore(StoreConfig{
		SessionID: id,
		Drafts:    r.cfg.Drafts,
		Auditor:   r.cfg.Auditor,
		Metrics:   r.cfg.Metrics,
		Logger:    logger,
	})
	if err := store.LoadDraft(ctx); err != nil {
		return nil, err
	}

	h := &handoff{
		composer:  r.cfg.Composer,
		notifier:  r.cfg.Notifier,
		reference: reference(id),
		logger:    logger,
		notices:   &r.notices,
		now:       r.cfg.Now,
	}
	ctrl, err := NewController(ControllerConfig{
		SessionID:  id,
		Store:      store,
		Generator:  r.cfg.Generator,
		Downloader: h,
		Mailer:     h,
		Alerter:    h,
		OnClose:    func() { r.release(id) },
		Auditor:    r.cfg.Auditor,
		Metrics:    r.cfg.Metrics,
		Logger:     logger,
		Now:        r.cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       id,
		ctrl:     ctrl,
		handoff:  h,
		cancel:   cancel,
		done:     make(chan struct{}),
		lastSeen: r.cfg.Now(),
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		cancel()
		return existing, nil
	}
	r.sessions[id] = s
	active := len(r.sessions)
	r.mu.Unlock()

	go func() {
		defer close(s.done)
		store.Run(runCtx, r.cfg.SaveInterval)
	}()

	r.cfg.Metrics.ObserveSession("started")
	r.cfg.Metrics.SetActiveSessions(active)
	if r.cfg.Auditor != nil {
		if err := r.cfg.Auditor.LogIntakeEvent(ctx, compliance.EventSessionStarted, id, int(store.Snapshot().CurrentStep), compliance.AuditDetails{}); err != nil {
			logger.Warn("intake: audit log failed", "error", err, "event", string(compliance.EventSessionStarted))
		}
	}
	logger.Info("intake: session opened")
	return s, nil
}

// Get returns the live session for id and marks it as active.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(r.cfg.Now())
	}
	return s, ok
}

// Len reports how many sessions are live.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// release drops a session after flushing it. It is the controller's
// onClose hook.
func (r *Sessions) release(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	active := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.stop()
	r.cfg.Metrics.ObserveSession("closed")
	r.cfg.Metrics.SetActiveSessions(active)
	r.cfg.Logger.Info("intake: session closed", "session_id", id)
}

// draftPurger is implemented by draft stores that need to be told to drop
// expired drafts.
type draftPurger interface {
	Purge() int
}

// Sweep drops sessions idle for longer than the TTL. Their drafts are
// flushed first and left to expire; stores without native expiry are
// purged here.
func (r *Sessions) Sweep(ctx context.Context) int {
	cutoff := r.cfg.Now().Add(-r.cfg.TTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		step := int(s.ctrl.Store().Snapshot().CurrentStep)
		s.stop()
		r.cfg.Metrics.ObserveSession("expired")
		if r.cfg.Auditor != nil {
			if err := r.cfg.Auditor.LogIntakeEvent(ctx, compliance.EventExpired, s.ID, step, compliance.AuditDetails{}); err != nil {
				r.cfg.Logger.Warn("intake: audit log failed", "error", err, "event", string(compliance.EventExpired))
			}
		}
	}
	if len(expired) > 0 {
		r.cfg.Metrics.SetActiveSessions(active)
		r.cfg.Logger.Info("intake: expired idle sessions", "count", len(expired))
	}
	if purger, ok := r.cfg.Drafts.(draftPurger); ok {
		if n := purger.Purge(); n > 0 {
			r.cfg.Logger.Info("intake: purged expired drafts", "count", n)
		}
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Sessions) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Shutdown flushes and stops every session, then waits for in-flight
// reception notices or ctx, whichever comes first.
func (r *Sessions) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	r.cfg.Metrics.SetActiveSessions(0)

	done := make(chan struct{})
	go func() {
		r.notices.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func reference(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "INT-" + strings.ToUpper(compact)
}

// HandoffResult is what the collaborators captured during Generate.
type HandoffResult struct {
	Artifact *Artifact
	Mail     *mailto.Message
	Alert    *Alert
}

// handoff implements the download, mail and alert collaborators for the
// HTTP host: it captures their output for the handler to return.
type handoff struct {
	composer  *mailto.Composer
	notifier  ReceptionNotifier
	reference string
	logger    *logging.Logger
	notices   *sync.WaitGroup
	now       func() time.Time

	mu     sync.Mutex
	result HandoffResult
}

func (h *handoff) Download(artifact Artifact) {
	h.mu.Lock()
	h.result.Artifact = &artifact
	h.mu.Unlock()
}

func (h *handoff) ComposeMailto(_ IntakeForm, artifact Artifact) {
	msg := h.composer.Compose(artifact.Filename)
	h.mu.Lock()
	h.result.Mail = &msg
	h.mu.Unlock()

	if h.notifier == nil {
		return
	}
	notice := notify.IntakeNotice{Reference: h.reference, GeneratedAt: h.now()}
	h.notices.Add(1)
	go func() {
		defer h.notices.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.notifier.NotifyIntakeGenerated(ctx, notice); err != nil {
			h.logger.Warn("intake: reception notice failed", "error", err)
		}
	}()
}

func (h *handoff) Alert(alert Alert) {
	h.mu.Lock()
	h.result.Alert = &alert
	h.mu.Unlock()
}

func (h *handoff) take() HandoffResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.result
	h.result = HandoffResult{}
	return out
}
