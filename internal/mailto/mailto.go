// Package mailto builds the pre-filled email the patient sends to reception
// after downloading their intake PDF.
package mailto

import (
	"net/url"
	"strings"
)

// DefaultSubject is used when the composer is not given one.
const DefaultSubject = "Patient Intake Form"

// Message is a composed email ready to open in the patient's mail client.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	URL     string `json:"url"`
}

// Composer builds messages addressed to one reception mailbox.
type Composer struct {
	To         string
	Subject    string
	ClinicName string
}

// New returns a composer for the given reception address.
func New(to, clinicName string) *Composer {
	return &Composer{To: strings.TrimSpace(to), Subject: DefaultSubject, ClinicName: clinicName}
}

// Compose builds the message for an attachment called filename. The body
// only names the file; the patient attaches it by hand.
func (c *Composer) Compose(filename string) Message {
	subject := c.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	greeting := "Hello,"
	if c.ClinicName != "" {
		greeting = "Hello " + c.ClinicName + " team,"
	}

	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\nPlease find my completed patient intake form attached.\n\n")
	b.WriteString("Attachment: ")
	b.WriteString(filename)
	b.WriteString("\n\n")
	b.WriteString("(Reminder: attach the PDF you just downloaded before sending this email.)\n\n")
	b.WriteString("Thank you.")
	body := b.String()

	return Message{
		To:      c.To,
		Subject: subject,
		Body:    body,
		URL:     buildURL(c.To, subject, body),
	}
}

// buildURL encodes per RFC 6068. Mail clients do not treat "+" as a space,
// so spaces are percent-encoded.
func buildURL(to, subject, body string) string {
	return "mailto:" + url.PathEscape(to) +
		"?subject=" + escape(subject) +
		"&body=" + escape(body)
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
