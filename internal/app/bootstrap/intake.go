package bootstrap

import (
	"fmt"

	"github.com/wolfman30/cardio-intake/internal/compliance"
	appconfig "github.com/wolfman30/cardio-intake/internal/config"
	"github.com/wolfman30/cardio-intake/internal/draft"
	"github.com/wolfman30/cardio-intake/internal/intake"
	"github.com/wolfman30/cardio-intake/internal/intakepdf"
	"github.com/wolfman30/cardio-intake/internal/mailto"
	"github.com/wolfman30/cardio-intake/internal/notify"
	"github.com/wolfman30/cardio-intake/internal/observability/metrics"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// IntakeDeps are the collaborators built elsewhere in main.
type IntakeDeps struct {
	Drafts   draft.Store
	Notifier *notify.ReceptionNotifier
	Audit    *compliance.AuditService
	Metrics  *metrics.IntakeMetrics
}

// BuildSessions wires the wizard registry with the PDF generator and the
// mail-client composer for the configured clinic.
func BuildSessions(cfg *appconfig.Config, deps IntakeDeps, logger *logging.Logger) (*intake.Sessions, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Drafts == nil {
		return nil, fmt.Errorf("bootstrap: draft store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	generator := intakepdf.New(intakepdf.Config{
		ClinicName:    cfg.ClinicName,
		ClinicAddress: cfg.ClinicAddress,
		ClinicPhone:   cfg.ClinicPhone,
	})

	sessionsCfg := intake.SessionsConfig{
		Drafts:       deps.Drafts,
		Generator:    generator,
		Composer:     mailto.New(cfg.ReceptionEmail, cfg.ClinicName),
		Metrics:      deps.Metrics,
		Logger:       logger,
		SaveInterval: cfg.DraftSaveInterval,
		TTL:          cfg.SessionTTL,
	}
	// Typed nils must not reach the interfaces.
	if deps.Notifier != nil {
		sessionsCfg.Notifier = deps.Notifier
	}
	if deps.Audit != nil {
		sessionsCfg.Auditor = deps.Audit
	}
	return intake.NewSessions(sessionsCfg)
}
