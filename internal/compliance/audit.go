// Package compliance records the PHI-free audit trail for intake sessions.
// Only lifecycle facts are stored (which session, which step, what
// happened); form contents never leave the browser session.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventSessionStarted is logged when a wizard is mounted.
	EventSessionStarted AuditEventType = "intake.session_started"
	// EventDraftRestored is logged when a saved draft seeds a new mount.
	EventDraftRestored AuditEventType = "intake.draft_restored"
	// EventDraftDiscarded is logged when a corrupted draft is thrown away.
	EventDraftDiscarded AuditEventType = "intake.draft_discarded"
	// EventGenerationFailed is logged when the PDF could not be produced.
	EventGenerationFailed AuditEventType = "intake.generation_failed"
	// EventGenerationSucceeded is logged when the PDF was handed to the patient.
	EventGenerationSucceeded AuditEventType = "intake.generation_succeeded"
	// EventCancelled is logged when the patient abandons the wizard.
	EventCancelled AuditEventType = "intake.cancelled"
	// EventExpired is logged when an idle session is dropped.
	EventExpired AuditEventType = "intake.expired"
)

// AuditEvent represents an immutable compliance audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	SessionID string          `json:"session_id"`
	Step      int             `json:"step"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details. None of it may carry form
// contents.
type AuditDetails struct {
	// For generation failures: a coarse error class, never the message
	FailureClass string `json:"failure_class,omitempty"`
	// For generation success
	ArtifactBytes int `json:"artifact_bytes,omitempty"`
	// For discarded drafts
	DraftBytes int `json:"draft_bytes,omitempty"`
}

// AuditService handles compliance audit logging. A nil *AuditService is a
// valid no-op logger.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	if db == nil {
		return nil
	}
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records a compliance audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO intake_audit_events (
			id, event_type, session_id, step, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.SessionID,
		event.Step,
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogIntakeEvent records a lifecycle event with optional details.
func (s *AuditService) LogIntakeEvent(ctx context.Context, eventType AuditEventType, sessionID string, step int, details AuditDetails) error {
	if s == nil {
		return nil
	}
	detailsJSON, _ := json.Marshal(details)
	return s.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		Step:      step,
		Details:   detailsJSON,
	})
}

// CountByType returns how many events of each type were logged since the
// given time. Used by the ops summary endpoint.
func (s *AuditService) CountByType(ctx context.Context, since time.Time) (map[AuditEventType]int, error) {
	if s == nil {
		return map[AuditEventType]int{}, nil
	}
	query := `
		SELECT event_type, COUNT(*)
		FROM intake_audit_events
		WHERE created_at >= $1
		GROUP BY event_type
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to count audit events: %w", err)
	}
	defer rows.Close()

	counts := make(map[AuditEventType]int)
	for rows.Next() {
		var eventType AuditEventType
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit count: %w", err)
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit counts: %w", err)
	}
	return counts, nil
}
