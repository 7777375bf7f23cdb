package intakepdf

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/cardio-intake/internal/intake"
)

func fixedNow() time.Time {
	return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
}

func sampleForm() intake.IntakeForm {
	return intake.IntakeForm{
		MedicalHistory: intake.MedicalHistory{Hypertension: true, SleepApnea: true},
		Medications:    "Metoprolol 50mg daily",
		Allergies:      "Penicillin",
		Tests:          intake.Tests{Echocardiogram: true, Angiogram: true},
		TestDetails: map[intake.TestID]intake.TestDetail{
			intake.TestEchocardiogram: {Location: "St Vincent's", Date: "March 2024"},
		},
		Smoking:       intake.Smoking{Past: true, Start: "1990", Stop: "2010"},
		FamilyHistory: true,
		NOK:           intake.NextOfKin{Name: "José Müller", Relation: "Spouse", Phone: "0412 345 678"},
		Notes:         "Occasional palpitations – mostly at night.",
	}
}

func TestGenerate(t *testing.T) {
	g := New(Config{ClinicName: "Heart Clinic", ClinicPhone: "(02) 9000 0000", Now: fixedNow})

	out, err := g.Generate(context.Background(), sampleForm())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Greater(t, len(out), 500)
}

func TestGenerate_EmptyForm(t *testing.T) {
	g := New(Config{Now: fixedNow})

	out, err := g.Generate(context.Background(), intake.FormData{}.Complete())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerate_UnsupportedCharacter(t *testing.T) {
	g := New(Config{Now: fixedNow})
	form := sampleForm()
	form.Notes = "feeling better 😊"

	out, err := g.Generate(context.Background(), form)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrUnsupportedCharacter))

	var ce *CharacterError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "notes", ce.Field)
	assert.Equal(t, '😊', ce.Rune)
	assert.True(t, ce.UnsupportedCharacter())
}

func TestGenerate_UnsupportedCharacterInTestDetail(t *testing.T) {
	g := New(Config{Now: fixedNow})
	form := sampleForm()
	form.TestDetails[intake.TestAngiogram] = intake.TestDetail{Location: "北京"}

	_, err := g.Generate(context.Background(), form)
	var ce *CharacterError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "testDetails.angiogram.location", ce.Field)
}

func TestGenerate_CancelledContext(t *testing.T) {
	g := New(Config{Now: fixedNow})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, sampleForm())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToCP1252(t *testing.T) {
	out, err := toCP1252("notes", "café – €5")
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9, ' ', 0x96, ' ', 0x80, '5'}, []byte(out))
}
