package mailto

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	c := New(" reception@heartclinic.example ", "Heart Clinic")
	msg := c.Compose("cardiology-intake-2026-10-19.pdf")

	assert.Equal(t, "reception@heartclinic.example", msg.To)
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Contains(t, msg.Body, "Hello Heart Clinic team,")
	assert.Contains(t, msg.Body, "Attachment: cardiology-intake-2026-10-19.pdf")
	assert.Contains(t, msg.Body, "attach the PDF you just downloaded")

	require.True(t, strings.HasPrefix(msg.URL, "mailto:reception@heartclinic.example?"))
	assert.NotContains(t, msg.URL, "+")

	parsed, err := url.Parse(msg.URL)
	require.NoError(t, err)
	q, err := url.ParseQuery(parsed.RawQuery)
	require.NoError(t, err)
	assert.Equal(t, "Patient Intake Form", q.Get("subject"))
	assert.Equal(t, msg.Body, q.Get("body"))
}

func TestCompose_Defaults(t *testing.T) {
	c := &Composer{To: "desk@example.com"}
	msg := c.Compose("form.pdf")

	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.True(t, strings.HasPrefix(msg.Body, "Hello,\n"))
}
