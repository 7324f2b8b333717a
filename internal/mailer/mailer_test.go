package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSendRejectsEmptyRecipients(t *testing.T) {
	m := NewSMTP(Config{Addr: "localhost:25", From: "valet@library.example.edu"}, zerolog.Nop())

	err := m.Send(context.Background(), Message{Subject: "orphan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")
}

func TestSMTPRender(t *testing.T) {
	m := NewSMTP(Config{Addr: "localhost:25", From: "valet@library.example.edu"}, zerolog.Nop())

	wire := string(m.render(Message{
		To:      []string{"ab1234@example.edu", "staff@example.edu"},
		Subject: "New BearStor Request",
		Body:    "Barcode: BAR001\n",
	}))

	headers, body, found := strings.Cut(wire, "\r\n\r\n")
	require.True(t, found, "headers and body separated by a blank line")

	assert.Contains(t, headers, "From: valet@library.example.edu")
	assert.Contains(t, headers, "To: ab1234@example.edu, staff@example.edu")
	assert.Contains(t, headers, "Subject: New BearStor Request")
	assert.Contains(t, headers, "Content-Type: text/plain; charset=utf-8")
	assert.Equal(t, "Barcode: BAR001\n", body)
}

func TestRecorderCollects(t *testing.T) {
	recorder := &Recorder{}

	require.NoError(t, recorder.Send(context.Background(), Message{To: []string{"a@example.edu"}}))
	require.NoError(t, recorder.Send(context.Background(), Message{To: []string{"b@example.edu"}}))

	require.Len(t, recorder.Messages, 2)
	assert.Equal(t, []string{"b@example.edu"}, recorder.Messages[1].To)
}

func TestNopDiscards(t *testing.T) {
	assert.NoError(t, Nop{}.Send(context.Background(), Message{To: []string{"a@example.edu"}}))
}
