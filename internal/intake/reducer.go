package intake

// State is the wizard's in-memory state.
type State struct {
	Data        FormData `json:"data"`
	CurrentStep Step     `json:"currentStep"`
	IsValid     bool     `json:"isValid"`
	IsDirty     bool     `json:"isDirty"`
}

// InitialState is what a freshly mounted wizard starts from.
func InitialState() State {
	return State{CurrentStep: StepWelcome}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Data = s.Data.Clone()
	return s
}

// Action is one of the discrete state transitions below.
type Action interface {
	isAction()
}

// UpdateData shallow-merges Patch into the form and marks it dirty.
type UpdateData struct{ Patch FormData }

// SetStep jumps straight to Step, clamped.
type SetStep struct{ Step int }

// NextStep advances one step; no-op on the last step.
type NextStep struct{}

// PrevStep goes back one step; no-op on the first step.
type PrevStep struct{}

// SetValid records the outcome of the latest schema run.
type SetValid struct{ Valid bool }

// DraftLoaded merges a restored draft without marking the form dirty.
type DraftLoaded struct{ Data FormData }

// Reset returns to InitialState.
type Reset struct{}

func (UpdateData) isAction()  {}
func (SetStep) isAction()     {}
func (NextStep) isAction()    {}
func (PrevStep) isAction()    {}
func (SetValid) isAction()    {}
func (DraftLoaded) isAction() {}
func (Reset) isAction()       {}

// Reduce applies a to s and returns the new state. It does no I/O and never
// mutates s.
func Reduce(s State, a Action) State {
	next := s.Clone()
	switch a := a.(type) {
	case UpdateData:
		next.Data = next.Data.Merge(a.Patch)
		next.IsDirty = true
	case SetStep:
		next.CurrentStep = ClampStep(a.Step)
	case NextStep:
		next.CurrentStep = ClampStep(int(s.CurrentStep) + 1)
	case PrevStep:
		next.CurrentStep = ClampStep(int(s.CurrentStep) - 1)
	case SetValid:
		next.IsValid = a.Valid
	case DraftLoaded:
		next.Data = next.Data.Merge(a.Data)
		next.IsDirty = false
	case Reset:
		return InitialState()
	}
	return next
}
