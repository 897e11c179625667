package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderWelcome(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(Request{
		To:       "dana@example.org",
		Template: TemplateWelcome,
		Data:     map[string]string{"Name": "Dana", "Role": "donor", "AppURL": "https://app.example.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome to DonorMatch, Dana", msg.Subject)
	assert.Contains(t, msg.Text, "Your donor account is ready.")
	assert.Contains(t, msg.HTML, `<a href="https://app.example.org">`)
}

func TestRenderEscapesHTML(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(Request{
		To:       "org@example.org",
		Template: TemplateInfoRequest,
		Data:     map[string]string{"OrgName": "Wells & Co", "Title": "<script>x</script>", "Note": "budget?"},
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "Wells &amp; Co")
	assert.Contains(t, msg.Text, "Note: budget?")
	assert.Equal(t, `A donor asked about "<script>x</script>"`, msg.Subject)
}

func TestRenderErrors(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(Request{To: "a@example.org", Template: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownTemplate))

	_, err = r.Render(Request{To: "not an address", Template: TemplateWelcome})
	assert.Error(t, err)
}

func TestSMTPSenderBuildsMultipart(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	s := NewSMTPSender("smtp.example.org:587", "user", "pw", "DonorMatch <noreply@example.org>")
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{To: "org@example.org", Subject: "Hello", Text: "plain", HTML: "<p>rich</p>"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "noreply@example.org", gotFrom)
	assert.Equal(t, []string{"org@example.org"}, gotTo)
	raw := string(gotMsg)
	assert.Contains(t, raw, "Subject: Hello\r\n")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "plain")
	assert.Contains(t, raw, "<p>rich</p>")
}

func TestSMTPSenderWrapsErrors(t *testing.T) {
	s := NewSMTPSender("localhost:25", "", "", "noreply@example.org")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("boom") }
	err := s.Send(context.Background(), Message{To: "a@example.org"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "smtp send:"))
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, s.Send(context.Background(), Message{To: "a@example.org", Subject: "Hi"}))
	assert.Contains(t, buf.String(), `"msg":"mail_logged"`)
	assert.Contains(t, buf.String(), `"to":"a@example.org"`)
}
