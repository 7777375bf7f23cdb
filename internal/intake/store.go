package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/cardio-intake/internal/compliance"
	"github.com/wolfman30/cardio-intake/internal/draft"
	"github.com/wolfman30/cardio-intake/internal/observability/metrics"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// DefaultSaveInterval is how often Run flushes a dirty draft.
const DefaultSaveInterval = 5 * time.Second

// DraftStore is the session-scoped key/value store drafts are written to.
type DraftStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Auditor records PHI-free lifecycle events.
type Auditor interface {
	LogIntakeEvent(ctx context.Context, eventType compliance.AuditEventType, sessionID string, step int, details compliance.AuditDetails) error
}

// Store wraps the pure reducer with draft persistence. All methods are safe
// for concurrent use; mutations are serialized.
type Store struct {
	mu    sync.Mutex
	state State

	// persistMu orders draft writes against Cleanup's delete so a save that
	// started before a reset can never land after it.
	persistMu sync.Mutex

	sessionID string
	key       string
	drafts    DraftStore
	auditor   Auditor
	metrics   *metrics.IntakeMetrics
	logger    *logging.Logger
}

// StoreConfig wires a Store.
type StoreConfig struct {
	SessionID string
	Drafts    DraftStore
	Auditor   Auditor
	Metrics   *metrics.IntakeMetrics
	Logger    *logging.Logger
}

// NewStore creates a store in its initial state. Call LoadDraft to seed it.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Drafts == nil {
		cfg.Drafts = draft.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Store{
		state:     InitialState(),
		sessionID: cfg.SessionID,
		key:       draft.Key(cfg.SessionID),
		drafts:    cfg.Drafts,
		auditor:   cfg.Auditor,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// DraftKey is the key this store persists under.
func (s *Store) DraftKey() string {
	return s.key
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a through the reducer and returns the new state.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state.Clone()
}

// UpdateData shallow-merges patch into the form and marks it dirty. It does
// not validate.
func (s *Store) UpdateData(patch FormData) {
	s.Dispatch(UpdateData{Patch: patch})
}

// SetStep moves to n, clamped to the valid step range.
func (s *Store) SetStep(n int) {
	s.Dispatch(SetStep{Step: n})
}

// NextStep advances one step, staying put on the last step.
func (s *Store) NextStep() {
	s.Dispatch(NextStep{})
}

// PrevStep goes back one step, staying put on the first step.
func (s *Store) PrevStep() {
	s.Dispatch(PrevStep{})
}

// ValidateCurrentStep runs the whole-form schema, not just the current
// step, records the result in IsValid and returns it.
func (s *Store) ValidateCurrentStep() bool {
	ok, _ := s.Validate()
	return ok
}

// Validate is ValidateCurrentStep that also returns the field failures.
func (s *Store) Validate() (bool, ValidationErrors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := Validate(s.state.Data)
	s.state = Reduce(s.state, SetValid{Valid: len(errs) == 0})
	return len(errs) == 0, errs
}

// SaveDraft writes the form to the draft store when it is dirty. A clean
// form is never written.
func (s *Store) SaveDraft(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if !s.state.IsDirty {
		s.mu.Unlock()
		return nil
	}
	payload, err := json.Marshal(s.state.Data)
	s.mu.Unlock()
	if err != nil {
		s.metrics.ObserveDraft("save", "error")
		return fmt.Errorf("intake: marshal draft: %w", err)
	}

	if err := s.drafts.Set(ctx, s.key, payload); err != nil {
		s.metrics.ObserveDraft("save", "error")
		s.logger.Warn("intake: draft save failed", "error", err, "session_id", s.sessionID)
		return fmt.Errorf("intake: save draft: %w", err)
	}
	s.metrics.ObserveDraft("save", "ok")
	return nil
}

// LoadDraft seeds the form from the draft store. Loading does not dirty the
// form. A draft that fails to parse is deleted and the form keeps its
// defaults; that case is never reported to the caller. A missing draft is
// not an error either. Only store failures are returned.
func (s *Store) LoadDraft(ctx context.Context) error {
	payload, err := s.drafts.Get(ctx, s.key)
	if errors.Is(err, draft.ErrNotFound) {
		s.metrics.ObserveDraft("load", "empty")
		return nil
	}
	if err != nil {
		s.metrics.ObserveDraft("load", "error")
		s.logger.Warn("intake: draft load failed", "error", err, "session_id", s.sessionID)
		return fmt.Errorf("intake: load draft: %w", err)
	}

	var data FormData
	if err := json.Unmarshal(payload, &data); err != nil {
		s.metrics.ObserveDraft("load", "corrupt")
		s.logger.Debug("intake: discarding corrupted draft", "session_id", s.sessionID, "bytes", len(payload))
		if delErr := s.drafts.Delete(ctx, s.key); delErr != nil {
			s.logger.Warn("intake: failed to delete corrupted draft", "error", delErr, "session_id", s.sessionID)
		}
		s.audit(ctx, compliance.EventDraftDiscarded, compliance.AuditDetails{DraftBytes: len(payload)})
		return nil
	}

	state := s.Dispatch(DraftLoaded{Data: data})
	s.metrics.ObserveDraft("load", "ok")
	s.audit(ctx, compliance.EventDraftRestored, compliance.AuditDetails{DraftBytes: len(payload)})
	s.logger.Debug("intake: draft restored", "session_id", s.sessionID, "step", int(state.CurrentStep))
	return nil
}

// Cleanup deletes the persisted draft and resets the in-memory state. It
// waits for any save in flight, so the key is absent when it returns nil.
func (s *Store) Cleanup(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.Dispatch(Reset{})
	if err := s.drafts.Delete(ctx, s.key); err != nil {
		s.metrics.ObserveDraft("delete", "error")
		s.logger.Warn("intake: draft delete failed", "error", err, "session_id", s.sessionID)
		return fmt.Errorf("intake: delete draft: %w", err)
	}
	s.metrics.ObserveDraft("delete", "ok")
	return nil
}

// Reset is Cleanup under the name the cancel path uses.
func (s *Store) Reset(ctx context.Context) error {
	return s.Cleanup(ctx)
}

// Flush is the page-unload hook: it saves whatever is dirty right now.
func (s *Store) Flush(ctx context.Context) error {
	return s.SaveDraft(ctx)
}

// Run saves the draft every interval until ctx is cancelled, then flushes
// once more so the last edits are not lost.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			_ = s.SaveDraft(ctx)
		}
	}
}

func (s *Store) audit(ctx context.Context, eventType compliance.AuditEventType, details compliance.AuditDetails) {
	if s.auditor == nil {
		return
	}
	step := int(s.Snapshot().CurrentStep)
	if err := s.auditor.LogIntakeEvent(ctx, eventType, s.sessionID, step, details); err != nil {
		s.logger.Warn("intake: audit log failed", "error", err, "event", string(eventType))
	}
}
