package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfman30/cardio-intake/internal/compliance"
	"github.com/wolfman30/cardio-intake/internal/observability/metrics"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

var (
	// ErrNotOnCompleteStep is returned when Generate is called before the
	// wizard reaches the Complete step.
	ErrNotOnCompleteStep = errors.New("intake: generation is only available on the complete step")
	// ErrGenerationInFlight is returned while a previous Generate call is
	// still running.
	ErrGenerationInFlight = errors.New("intake: generation already in progress")
)

// AttachmentInstruction is shown on the finished screen and repeated in the
// email body: the mail client cannot attach the PDF for the patient.
const AttachmentInstruction = "Your email app will open with a message to our reception team. " +
	"You will need to manually attach the downloaded PDF before sending."

// GenerationFailedAlert is raised when the PDF collaborator fails.
var GenerationFailedAlert = Alert{
	Title: "We couldn't create your PDF",
	Message: "Something in your answers could not be added to the PDF. This is usually caused by " +
		"special characters such as emoji or symbols. Please review your entries and try again.",
}

// Artifact is the generated document handed to the download collaborator.
type Artifact struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// Alert is a blocking message for the patient.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Generator renders the finished form.
type Generator interface {
	Generate(ctx context.Context, form IntakeForm) ([]byte, error)
}

// Downloader hands the artifact to the patient. Fire-and-forget.
type Downloader interface {
	Download(artifact Artifact)
}

// Mailer opens a pre-filled email to reception. Fire-and-forget; the
// artifact is not attached.
type Mailer interface {
	ComposeMailto(form IntakeForm, artifact Artifact)
}

// Alerter shows a blocking alert.
type Alerter interface {
	Alert(alert Alert)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, form IntakeForm) ([]byte, error)

func (f GeneratorFunc) Generate(ctx context.Context, form IntakeForm) ([]byte, error) {
	return f(ctx, form)
}

// Phase is the sub-state of the Complete step.
type Phase string

const (
	PhaseReady    Phase = "ready"
	PhaseFinished Phase = "finished"
)

// ArtifactFilename names the PDF for the day it was generated.
func ArtifactFilename(at time.Time) string {
	return "cardiology-intake-" + at.Format("2006-01-02") + ".pdf"
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	SessionID  string
	Store      *Store
	Generator  Generator
	Downloader Downloader
	Mailer     Mailer
	Alerter    Alerter
	OnClose    func()
	Auditor    Auditor
	Metrics    *metrics.IntakeMetrics
	Logger     *logging.Logger
	Now        func() time.Time
}

// Controller drives the wizard across its eight steps and performs the
// terminal generate-and-send action.
type Controller struct {
	sessionID  string
	store      *Store
	generator  Generator
	downloader Downloader
	mailer     Mailer
	alerter    Alerter
	onClose    func()
	auditor    Auditor
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
	now        func() time.Time

	generating atomic.Bool
	mu         sync.Mutex
	phase      Phase
}

// NewController validates cfg and returns a controller in the ready phase.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("intake: controller requires a store")
	}
	if cfg.Generator == nil {
		return nil, errors.New("intake: controller requires a generator")
	}
	if cfg.Downloader == nil || cfg.Mailer == nil || cfg.Alerter == nil {
		return nil, errors.New("intake: controller requires download, mail and alert collaborators")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		sessionID:  cfg.SessionID,
		store:      cfg.Store,
		generator:  cfg.Generator,
		downloader: cfg.Downloader,
		mailer:     cfg.Mailer,
		alerter:    cfg.Alerter,
		onClose:    cfg.OnClose,
		auditor:    cfg.Auditor,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        cfg.Now,
		phase:      PhaseReady,
	}, nil
}

// Store exposes the underlying state store.
func (c *Controller) Store() *Store {
	return c.store
}

// View is what the page renders.
type View struct {
	State        State  `json:"state"`
	StepName     string `json:"stepName"`
	CanProceed   bool   `json:"canProceed"`
	Generating   bool   `json:"generating"`
	Phase        Phase  `json:"phase"`
	Instructions string `json:"instructions,omitempty"`
}

// View snapshots the wizard for display.
func (c *Controller) View() View {
	state := c.store.Snapshot()
	phase := c.Phase()
	v := View{
		State:      state,
		StepName:   state.CurrentStep.String(),
		CanProceed: CanProceed(state.CurrentStep, state.Data),
		Generating: c.generating.Load(),
		Phase:      phase,
	}
	if phase == PhaseFinished {
		// The form is already reset; keep showing the completion screen
		// until the patient navigates or the host closes the wizard.
		v.StepName = StepComplete.String()
		v.CanProceed = false
		v.Instructions = AttachmentInstruction
	}
	return v
}

// Phase reports the Complete step's sub-state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// Update commits live edits without moving.
func (c *Controller) Update(live FormData) View {
	c.commit(live)
	return c.View()
}

// Next commits live edits and advances one step if the current step allows
// it. The returned bool reports whether the step changed.
func (c *Controller) Next(live FormData) (View, bool) {
	moved := c.forward(live)
	c.metrics.ObserveTransition("next", moved)
	return c.View(), moved
}

// Previous commits live edits and goes back one step. Backward moves are
// never gated.
func (c *Controller) Previous(live FormData) (View, bool) {
	moved := c.backward(live)
	c.metrics.ObserveTransition("previous", moved)
	return c.View(), moved
}

// JumpTo commits live edits, then walks to target one step at a time,
// committing again at each hop. Forward walks stop at the first step that
// cannot proceed.
func (c *Controller) JumpTo(target int, live FormData) (View, bool) {
	goal := ClampStep(target)
	c.commit(live)
	moved := false
	for {
		current := c.store.Snapshot().CurrentStep
		if current == goal {
			break
		}
		var hopped bool
		if goal > current {
			hopped = c.forward(live)
		} else {
			hopped = c.backward(live)
		}
		if !hopped {
			break
		}
		moved = true
	}
	c.metrics.ObserveTransition("jump", moved)
	return c.View(), moved
}

func (c *Controller) forward(live FormData) bool {
	c.commit(live)
	state := c.store.Snapshot()
	if state.CurrentStep == LastStep || !CanProceed(state.CurrentStep, state.Data) {
		return false
	}
	c.store.NextStep()
	c.setPhase(PhaseReady)
	return true
}

func (c *Controller) backward(live FormData) bool {
	c.commit(live)
	if c.store.Snapshot().CurrentStep == FirstStep {
		return false
	}
	c.store.PrevStep()
	c.setPhase(PhaseReady)
	return true
}

// commit writes the active step's fields into the store. Starting a new
// form after a finished one returns the wizard to the ready phase.
func (c *Controller) commit(live FormData) {
	if live.IsEmpty() {
		return
	}
	c.store.UpdateData(live)
	c.setPhase(PhaseReady)
}

// Validate runs the full schema through the store.
func (c *Controller) Validate() (bool, ValidationErrors) {
	return c.store.Validate()
}

// Generate is the terminal action. It renders the accumulated form, hands
// the artifact to the download and mail collaborators, then wipes the draft.
// A failed render raises GenerationFailedAlert and leaves state untouched so
// the patient can correct their answers and retry.
func (c *Controller) Generate(ctx context.Context) (Artifact, error) {
	state := c.store.Snapshot()
	if state.CurrentStep != StepComplete || c.Phase() == PhaseFinished {
		return Artifact{}, ErrNotOnCompleteStep
	}
	if !c.generating.CompareAndSwap(false, true) {
		return Artifact{}, ErrGenerationInFlight
	}
	defer c.generating.Store(false)

	started := c.now()
	form := state.Data.Complete()

	payload, err := c.generator.Generate(ctx, form)
	if err != nil {
		elapsed := c.now().Sub(started).Seconds()
		c.metrics.ObserveGeneration("error", elapsed)
		c.logger.Error("intake: pdf generation failed", "error", err, "session_id", c.sessionID)
		c.audit(ctx, compliance.EventGenerationFailed, int(state.CurrentStep), compliance.AuditDetails{
			FailureClass: failureClass(err),
		})
		c.alerter.Alert(GenerationFailedAlert)
		return Artifact{}, fmt.Errorf("intake: generate pdf: %w", err)
	}

	artifact := Artifact{
		Filename:    ArtifactFilename(started),
		ContentType: "application/pdf",
		Bytes:       payload,
	}
	c.downloader.Download(artifact)
	c.mailer.ComposeMailto(form, artifact)

	if err := c.store.Cleanup(ctx); err != nil {
		// The in-memory state is already reset; the draft key expires with the session.
		c.logger.Warn("intake: cleanup after generation failed", "error", err, "session_id", c.sessionID)
	}
	c.setPhase(PhaseFinished)

	c.metrics.ObserveGeneration("ok", c.now().Sub(started).Seconds())
	c.audit(ctx, compliance.EventGenerationSucceeded, int(StepComplete), compliance.AuditDetails{
		ArtifactBytes: len(payload),
	})
	c.logger.Info("intake: pdf generated", "session_id", c.sessionID, "bytes", len(payload))
	return artifact, nil
}

// Generating reports whether a Generate call is running.
func (c *Controller) Generating() bool {
	return c.generating.Load()
}

// Cancel discards the draft and closes the wizard.
func (c *Controller) Cancel(ctx context.Context) error {
	step := int(c.store.Snapshot().CurrentStep)
	err := c.store.Reset(ctx)
	c.audit(ctx, compliance.EventCancelled, step, compliance.AuditDetails{})
	c.Close()
	return err
}

// Close signals the host that the wizard should be dismissed.
func (c *Controller) Close() {
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Controller) audit(ctx context.Context, eventType compliance.AuditEventType, step int, details compliance.AuditDetails) {
	if c.auditor == nil {
		return
	}
	if err := c.auditor.LogIntakeEvent(ctx, eventType, c.sessionID, step, details); err != nil {
		c.logger.Warn("intake: audit log failed", "error", err, "event", string(eventType))
	}
}

// UnsupportedCharacterError is implemented by generator errors caused by
// text the renderer cannot encode.
type UnsupportedCharacterError interface {
	UnsupportedCharacter() bool
}

func failureClass(err error) string {
	var uc UnsupportedCharacterError
	switch {
	case errors.As(err, &uc) && uc.UnsupportedCharacter():
		return "unsupported_character"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "render_error"
	}
}
