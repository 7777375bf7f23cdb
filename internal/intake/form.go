// Package intake holds the patient intake wizard: the form model, its
// validation schema, the pure step reducer, the draft-persisting store and
// the controller that drives the eight wizard steps to a generated PDF.
package intake

import (
	"encoding/json"
	"maps"
)

// MedicalHistory records the cardiac risk conditions a patient ticks.
type MedicalHistory struct {
	Hypertension       bool `json:"bp"`
	Diabetes           bool `json:"diabetes"`
	HighCholesterol    bool `json:"cholesterol"`
	AtrialFibrillation bool `json:"afib"`
	SleepApnea         bool `json:"sleepApnea"`
}

// Tests records which cardiac investigations the patient has had before.
type Tests struct {
	Echocardiogram bool `json:"echo"`
	HolterMonitor  bool `json:"holter"`
	Angiogram      bool `json:"angiogram"`
	CardiacSurgery bool `json:"surgery"`
}

// TestID identifies one of the cardiac tests on the Tests step.
type TestID string

const (
	TestEchocardiogram TestID = "echo"
	TestHolterMonitor  TestID = "holter"
	TestAngiogram      TestID = "angiogram"
	TestCardiacSurgery TestID = "surgery"
)

// AllTests lists the tests in the order the form presents them.
var AllTests = []TestID{TestEchocardiogram, TestHolterMonitor, TestAngiogram, TestCardiacSurgery}

// Label is the patient-facing name of the test.
func (id TestID) Label() string {
	switch id {
	case TestEchocardiogram:
		return "Echocardiogram"
	case TestHolterMonitor:
		return "Holter Monitor"
	case TestAngiogram:
		return "Angiogram"
	case TestCardiacSurgery:
		return "Previous Cardiac Surgery"
	default:
		return string(id)
	}
}

// Known reports whether id is one of AllTests.
func (id TestID) Known() bool {
	for _, t := range AllTests {
		if t == id {
			return true
		}
	}
	return false
}

// Has reports whether the flag for id is set.
func (t Tests) Has(id TestID) bool {
	switch id {
	case TestEchocardiogram:
		return t.Echocardiogram
	case TestHolterMonitor:
		return t.HolterMonitor
	case TestAngiogram:
		return t.Angiogram
	case TestCardiacSurgery:
		return t.CardiacSurgery
	}
	return false
}

// TestDetail is where and when a test was done. Both are free text.
type TestDetail struct {
	Location string `json:"location,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Smoking captures current and past smoking status.
type Smoking struct {
	Current bool   `json:"current"`
	Past    bool   `json:"past"`
	Start   string `json:"start,omitempty"`
	Stop    string `json:"stop,omitempty"`
}

// NextOfKin is the patient's emergency contact.
type NextOfKin struct {
	Name     string `json:"name,omitempty"`
	Relation string `json:"relation,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// FormData is the partially filled form the wizard accumulates. A nil field
// has not been touched yet. It doubles as the patch type for UpdateData.
type FormData struct {
	MedicalHistory *MedicalHistory       `json:"medicalHistory,omitempty"`
	Medications    *string               `json:"medications,omitempty"`
	Allergies      *string               `json:"allergies,omitempty"`
	Tests          *Tests                `json:"tests,omitempty"`
	TestDetails    map[TestID]TestDetail `json:"testDetails,omitempty"`
	Smoking        *Smoking              `json:"smoking,omitempty"`
	FamilyHistory  *bool                 `json:"familyHistory,omitempty"`
	NOK            *NextOfKin            `json:"nok,omitempty"`
	Notes          *string               `json:"notes,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f FormData) IsEmpty() bool {
	return f.MedicalHistory == nil &&
		f.Medications == nil &&
		f.Allergies == nil &&
		f.Tests == nil &&
		len(f.TestDetails) == 0 &&
		f.Smoking == nil &&
		f.FamilyHistory == nil &&
		f.NOK == nil &&
		f.Notes == nil
}

// Merge returns f with every field set in patch replacing the field in f.
// The merge is shallow: nested records are replaced wholesale, so a caller
// changing one medical history flag must send the whole MedicalHistory.
// Test details are keyed per test, so each test entry in patch replaces the
// matching entry.
func (f FormData) Merge(patch FormData) FormData {
	out := f.Clone()
	if patch.MedicalHistory != nil {
		v := *patch.MedicalHistory
		out.MedicalHistory = &v
	}
	if patch.Medications != nil {
		out.Medications = ptr(*patch.Medications)
	}
	if patch.Allergies != nil {
		out.Allergies = ptr(*patch.Allergies)
	}
	if patch.Tests != nil {
		v := *patch.Tests
		out.Tests = &v
	}
	if len(patch.TestDetails) > 0 {
		if out.TestDetails == nil {
			out.TestDetails = make(map[TestID]TestDetail, len(patch.TestDetails))
		}
		maps.Copy(out.TestDetails, patch.TestDetails)
	}
	if patch.Smoking != nil {
		v := *patch.Smoking
		out.Smoking = &v
	}
	if patch.FamilyHistory != nil {
		out.FamilyHistory = ptr(*patch.FamilyHistory)
	}
	if patch.NOK != nil {
		v := *patch.NOK
		out.NOK = &v
	}
	if patch.Notes != nil {
		out.Notes = ptr(*patch.Notes)
	}
	return out
}

// Clone returns a copy of f that shares no memory with it.
func (f FormData) Clone() FormData {
	out := FormData{}
	if f.MedicalHistory != nil {
		v := *f.MedicalHistory
		out.MedicalHistory = &v
	}
	if f.Medications != nil {
		out.Medications = ptr(*f.Medications)
	}
	if f.Allergies != nil {
		out.Allergies = ptr(*f.Allergies)
	}
	if f.Tests != nil {
		v := *f.Tests
		out.Tests = &v
	}
	if f.TestDetails != nil {
		out.TestDetails = maps.Clone(f.TestDetails)
	}
	if f.Smoking != nil {
		v := *f.Smoking
		out.Smoking = &v
	}
	if f.FamilyHistory != nil {
		out.FamilyHistory = ptr(*f.FamilyHistory)
	}
	if f.NOK != nil {
		v := *f.NOK
		out.NOK = &v
	}
	if f.Notes != nil {
		out.Notes = ptr(*f.Notes)
	}
	return out
}

// Complete fills every untouched field with its default (all flags false,
// empty text) and returns the form handed to the PDF generator.
func (f FormData) Complete() IntakeForm {
	form := IntakeForm{
		TestDetails: map[TestID]TestDetail{},
	}
	if f.MedicalHistory != nil {
		form.MedicalHistory = *f.MedicalHistory
	}
	if f.Medications != nil {
		form.Medications = *f.Medications
	}
	if f.Allergies != nil {
		form.Allergies = *f.Allergies
	}
	if f.Tests != nil {
		form.Tests = *f.Tests
	}
	for id, detail := range f.TestDetails {
		form.TestDetails[id] = detail
	}
	if f.Smoking != nil {
		form.Smoking = *f.Smoking
	}
	if f.FamilyHistory != nil {
		form.FamilyHistory = *f.FamilyHistory
	}
	if f.NOK != nil {
		form.NOK = *f.NOK
	}
	if f.Notes != nil {
		form.Notes = *f.Notes
	}
	return form
}

// UnmarshalJSON accepts the canonical testDetails map and also the flat
// "<test>Location" / "<test>Date" keys older clients send.
func (f *FormData) UnmarshalJSON(data []byte) error {
	type plain FormData
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, id := range AllTests {
		location, hasLocation := legacyString(raw, string(id)+"Location")
		date, hasDate := legacyString(raw, string(id)+"Date")
		if !hasLocation && !hasDate {
			continue
		}
		if decoded.TestDetails == nil {
			decoded.TestDetails = map[TestID]TestDetail{}
		}
		detail := decoded.TestDetails[id]
		if hasLocation {
			detail.Location = location
		}
		if hasDate {
			detail.Date = date
		}
		decoded.TestDetails[id] = detail
	}

	*f = FormData(decoded)
	return nil
}

func legacyString(raw map[string]json.RawMessage, key string) (string, bool) {
	msg, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return "", false
	}
	return s, true
}

// IntakeForm is the finished submission with defaults applied.
type IntakeForm struct {
	MedicalHistory MedicalHistory        `json:"medicalHistory"`
	Medications    string                `json:"medications"`
	Allergies      string                `json:"allergies"`
	Tests          Tests                 `json:"tests"`
	TestDetails    map[TestID]TestDetail `json:"testDetails"`
	Smoking        Smoking               `json:"smoking"`
	FamilyHistory  bool                  `json:"familyHistory"`
	NOK            NextOfKin             `json:"nok"`
	Notes          string                `json:"notes"`
}

// Detail returns the location/date recorded for a test, if any.
func (f IntakeForm) Detail(id TestID) (TestDetail, bool) {
	d, ok := f.TestDetails[id]
	if !ok || (d.Location == "" && d.Date == "") {
		return TestDetail{}, false
	}
	return d, true
}

func ptr[T any](v T) *T {
	return &v
}
