package intake

// Step is a wizard page index.
type Step int

const (
	StepWelcome Step = iota
	StepMedicalHistory
	StepMedications
	StepTests
	StepEmergencyContact
	StepNotes
	StepReview
	StepComplete
)

const (
	FirstStep = StepWelcome
	LastStep  = StepComplete
)

var stepNames = [...]string{
	StepWelcome:          "Welcome",
	StepMedicalHistory:   "Medical History",
	StepMedications:      "Medications",
	StepTests:            "Cardiac Tests",
	StepEmergencyContact: "Emergency Contact",
	StepNotes:            "Additional Notes",
	StepReview:           "Review",
	StepComplete:         "Complete",
}

func (s Step) String() string {
	if s < FirstStep || s > LastStep {
		return "Unknown"
	}
	return stepNames[s]
}

// ClampStep pins n into [FirstStep, LastStep].
func ClampStep(n int) Step {
	switch {
	case n < int(FirstStep):
		return FirstStep
	case n > int(LastStep):
		return LastStep
	default:
		return Step(n)
	}
}

// CanProceed decides whether the Next button is enabled on step. The checks
// are presence checks, not schema validation: Medical History only needs
// the section to have been submitted once, and Review needs every required
// section present. Complete is gated by the in-flight generation instead.
func CanProceed(step Step, data FormData) bool {
	switch step {
	case StepMedicalHistory:
		return data.MedicalHistory != nil
	case StepReview:
		return data.MedicalHistory != nil &&
			data.Tests != nil &&
			data.Smoking != nil &&
			data.FamilyHistory != nil
	default:
		return true
	}
}
