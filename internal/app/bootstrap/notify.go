package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/cardio-intake/internal/config"
	"github.com/wolfman30/cardio-intake/internal/notify"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// BuildEmailSender picks the reception email provider from EMAIL_PROVIDER.
// ses is only used when sesClient is non-nil. It returns the sender, the
// provider name and, when no real provider could be built, the reason.
func BuildEmailSender(cfg *appconfig.Config, sesClient notify.SESAPI, logger *logging.Logger) (notify.EmailSender, string, string) {
	if cfg == nil {
		return nil, "", "missing config"
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return notify.NewStubEmailSender(logger), "stub", "SENDGRID_API_KEY not set"
		}
		return sender, "sendgrid", ""
	case "ses":
		sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return notify.NewStubEmailSender(logger), "stub", "SES client unavailable"
		}
		return sender, "ses", ""
	case "", "none":
		return nil, "none", "reception notices disabled"
	default:
		return notify.NewStubEmailSender(logger), "stub", "unknown EMAIL_PROVIDER " + cfg.EmailProvider
	}
}

// BuildReceptionNotifier wires the PHI-free reception notice. It returns nil
// when notices are disabled.
func BuildReceptionNotifier(cfg *appconfig.Config, sesClient notify.SESAPI, logger *logging.Logger) *notify.ReceptionNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	sender, provider, reason := BuildEmailSender(cfg, sesClient, logger)
	if sender == nil {
		logger.Info("reception notices disabled", "reason", reason)
		return nil
	}
	if reason != "" {
		logger.Warn("reception email provider degraded", "provider", provider, "reason", reason)
	}
	notifier := notify.NewReceptionNotifier(sender, cfg.ReceptionEmail, cfg.ClinicName, logger)
	if !notifier.Enabled() {
		return nil
	}
	logger.Info("reception notices enabled", "provider", provider)
	return notifier
}
