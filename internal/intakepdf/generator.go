// Package intakepdf renders a finished intake form as a single PDF using the
// core Helvetica font. Core fonts are cp1252 only, so any rune outside that
// code page fails the render instead of being silently replaced.
package intakepdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/encoding/charmap"

	"github.com/wolfman30/cardio-intake/internal/intake"
)

var tracer = otel.Tracer("cardio.internal.intakepdf")

// ErrUnsupportedCharacter is wrapped by every CharacterError.
var ErrUnsupportedCharacter = errors.New("intakepdf: unsupported character")

// CharacterError reports the first rune the PDF font cannot encode.
type CharacterError struct {
	Field string
	Rune  rune
}

func (e *CharacterError) Error() string {
	return fmt.Sprintf("intakepdf: %s contains %U which cannot be rendered", e.Field, e.Rune)
}

func (e *CharacterError) Unwrap() error { return ErrUnsupportedCharacter }

// UnsupportedCharacter marks the error as caused by patient input.
func (e *CharacterError) UnsupportedCharacter() bool { return true }

// Config describes the clinic printed in the header.
type Config struct {
	ClinicName    string
	ClinicAddress string
	ClinicPhone   string
	Now           func() time.Time
}

// Generator implements intake.Generator.
type Generator struct {
	cfg Config
}

var _ intake.Generator = (*Generator)(nil)

// New returns a generator for the given clinic.
func New(cfg Config) *Generator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if strings.TrimSpace(cfg.ClinicName) == "" {
		cfg.ClinicName = "Cardiology Clinic"
	}
	return &Generator{cfg: cfg}
}

// Generate renders form and returns the PDF bytes.
func (g *Generator) Generate(ctx context.Context, form intake.IntakeForm) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "intakepdf.Generate")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := g.cfg.Now()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(now)
	pdf.SetTitle("Patient Intake Form", false)
	pdf.SetCreator(g.cfg.ClinicName, false)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("")

	w := &writer{pdf: pdf}
	footer := w.encode("footer", "Generated "+now.Format("2 January 2006 15:04"))
	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(90, 6, footer, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	w.header(g.cfg)
	w.render(form)

	if w.err != nil {
		span.RecordError(w.err)
		span.SetStatus(codes.Error, "unsupported character")
		return nil, w.err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("intakepdf: render: %w", err)
	}
	span.SetAttributes(attribute.Int("intakepdf.bytes", buf.Len()))
	return buf.Bytes(), nil
}

// writer draws onto the document and keeps the first encoding error.
type writer struct {
	pdf *fpdf.Fpdf
	err error
}

func (w *writer) encode(field, s string) string {
	if w.err != nil {
		return ""
	}
	out, err := toCP1252(field, s)
	if err != nil {
		w.err = err
		return ""
	}
	return out
}

func toCP1252(field, s string) (string, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			return "", &CharacterError{Field: field, Rune: r}
		}
		out = append(out, b)
	}
	return string(out), nil
}

func (w *writer) header(cfg Config) {
	pdf := w.pdf
	pdf.SetTextColor(140, 20, 40)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 9, w.encode("clinic", cfg.ClinicName), "", 1, "L", false, 0, "")

	pdf.SetTextColor(90, 90, 90)
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range []string{cfg.ClinicAddress, cfg.ClinicPhone} {
		if strings.TrimSpace(line) != "" {
			pdf.CellFormat(0, 5, w.encode("clinic", line), "", 1, "L", false, 0, "")
		}
	}

	pdf.Ln(4)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Patient Intake Form", "", 1, "L", false, 0, "")
	y := pdf.GetY()
	pdf.SetDrawColor(140, 20, 40)
	pdf.Line(18, y+1, 192, y+1)
	pdf.Ln(4)
}

func (w *writer) render(form intake.IntakeForm) {
	mh := form.MedicalHistory
	w.section("Medical History")
	w.flag("High Blood Pressure", mh.Hypertension)
	w.flag("Diabetes", mh.Diabetes)
	w.flag("High Cholesterol", mh.HighCholesterol)
	w.flag("Atrial Fibrillation", mh.AtrialFibrillation)
	w.flag("Sleep Apnea", mh.SleepApnea)

	w.section("Medications")
	w.paragraph("medications", form.Medications)

	w.section("Allergies")
	w.paragraph("allergies", form.Allergies)

	w.section("Cardiac Tests")
	for _, id := range intake.AllTests {
		w.flag(id.Label(), form.Tests.Has(id))
		if detail, ok := form.Detail(id); ok {
			w.indented("testDetails."+string(id)+".location", "Location", detail.Location)
			w.indented("testDetails."+string(id)+".date", "Date", detail.Date)
		}
	}

	w.section("Smoking")
	w.flag("Current smoker", form.Smoking.Current)
	w.flag("Past smoker", form.Smoking.Past)
	w.indented("smoking.start", "Started", form.Smoking.Start)
	w.indented("smoking.stop", "Stopped", form.Smoking.Stop)

	w.section("Family History")
	w.flag("Family history of heart disease", form.FamilyHistory)

	w.section("Emergency Contact")
	w.field("nok.name", "Name", form.NOK.Name)
	w.field("nok.relation", "Relationship", form.NOK.Relation)
	w.field("nok.phone", "Phone", form.NOK.Phone)

	w.section("Additional Notes")
	w.paragraph("notes", form.Notes)
}

func (w *writer) section(title string) {
	w.pdf.Ln(3)
	w.pdf.SetFont("Helvetica", "B", 12)
	w.pdf.SetFillColor(245, 235, 237)
	w.pdf.CellFormat(0, 7, title, "", 1, "L", true, 0, "")
	w.pdf.Ln(1)
}

func (w *writer) flag(label string, on bool) {
	value := "No"
	if on {
		value = "Yes"
	}
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.CellFormat(95, 6, w.encode("label", label), "", 0, "L", false, 0, "")
	w.pdf.SetFont("Helvetica", "B", 10)
	w.pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func (w *writer) field(path, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "Not provided"
	}
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.CellFormat(40, 6, label+":", "", 0, "L", false, 0, "")
	w.pdf.MultiCell(0, 6, w.encode(path, value), "", "L", false)
}

func (w *writer) indented(path, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	w.pdf.SetFont("Helvetica", "", 9)
	w.pdf.SetX(w.pdf.GetX() + 8)
	w.pdf.CellFormat(24, 5, label+":", "", 0, "L", false, 0, "")
	w.pdf.MultiCell(0, 5, w.encode(path, value), "", "L", false)
}

func (w *writer) paragraph(path, text string) {
	text = strings.TrimSpace(text)
	w.pdf.SetFont("Helvetica", "", 10)
	if text == "" {
		w.pdf.SetTextColor(120, 120, 120)
		w.pdf.CellFormat(0, 6, "None reported", "", 1, "L", false, 0, "")
		w.pdf.SetTextColor(0, 0, 0)
		return
	}
	w.pdf.MultiCell(0, 5, w.encode(path, text), "", "L", false)
}
