package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	tests := []struct {
		name    string
		event   AuditEvent
		wantErr bool
	}{
		{
			name: "session started",
			event: AuditEvent{
				EventType: EventSessionStarted,
				SessionID: "sess-1",
			},
		},
		{
			name: "generation succeeded with details",
			event: AuditEvent{
				EventType: EventGenerationSucceeded,
				SessionID: "sess-2",
				Step:      7,
				Details:   []byte(`{"artifact_bytes":2048}`),
			},
		},
		{
			name: "database failure",
			event: AuditEvent{
				EventType: EventCancelled,
				SessionID: "sess-3",
				Step:      2,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := mock.ExpectExec("INSERT INTO intake_audit_events").
				WithArgs(sqlmock.AnyArg(), tt.event.EventType, tt.event.SessionID, tt.event.Step, sqlmock.AnyArg(), sqlmock.AnyArg())
			if tt.wantErr {
				exec.WillReturnError(errors.New("connection reset"))
			} else {
				exec.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := service.LogEvent(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuditService_LogIntakeEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO intake_audit_events").
		WithArgs(sqlmock.AnyArg(), EventGenerationFailed, "sess-9", 7, []byte(`{"failure_class":"unsupported_character"}`), fixed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogIntakeEvent(context.Background(), EventGenerationFailed, "sess-9", 7, AuditDetails{FailureClass: "unsupported_character"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_CountByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	since := time.Now().Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{"event_type", "count"}).
		AddRow(string(EventSessionStarted), 12).
		AddRow(string(EventGenerationSucceeded), 5)
	mock.ExpectQuery("SELECT event_type, COUNT").WithArgs(since).WillReturnRows(rows)

	counts, err := service.CountByType(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 12, counts[EventSessionStarted])
	assert.Equal(t, 5, counts[EventGenerationSucceeded])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_NilIsNoop(t *testing.T) {
	var service *AuditService
	assert.Nil(t, NewAuditService(nil))
	assert.NoError(t, service.LogEvent(context.Background(), AuditEvent{EventType: EventCancelled}))
	assert.NoError(t, service.LogIntakeEvent(context.Background(), EventCancelled, "s", 0, AuditDetails{}))

	counts, err := service.CountByType(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, counts)
}
