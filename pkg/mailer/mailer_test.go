package mailer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/mailer"
)

func TestValidAddress(t *testing.T) {
	t.Parallel()

	valid := []string{
		"ada@example.com",
		"ada.lovelace+notify@sub.example.co",
		"x_1-2%3@example.io",
	}
	for _, addr := range valid {
		assert.True(t, mailer.ValidAddress(addr), "address %q", addr)
	}

	invalid := []string{
		"",
		"ada",
		"ada@",
		"@example.com",
		"ada@example",
		"ada example@example.com",
	}
	for _, addr := range invalid {
		assert.False(t, mailer.ValidAddress(addr), "address %q", addr)
	}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	base := mailer.Message{
		To:       "ada@example.com",
		Subject:  "Hello",
		BodyText: "hi there",
	}

	t.Run("valid message", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, base.Validate())
	})

	t.Run("html-only body is fine", func(t *testing.T) {
		t.Parallel()
		msg := base
		msg.BodyText = ""
		msg.BodyHTML = "<p>hi</p>"
		assert.NoError(t, msg.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*mailer.Message)
	}{
		{"missing recipient", func(m *mailer.Message) { m.To = "" }},
		{"malformed recipient", func(m *mailer.Message) { m.To = "not-an-address" }},
		{"missing subject", func(m *mailer.Message) { m.Subject = "" }},
		{"missing body", func(m *mailer.Message) { m.BodyText = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := base
			tt.mutate(&msg)
			assert.ErrorIs(t, msg.Validate(), mailer.ErrInvalidMessage)
		})
	}
}

func TestDevSender(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes html and metadata files", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		s := mailer.NewDevSender(dir)

		receipt, err := s.Send(ctx, mailer.Message{
			To:       "ada@example.com",
			Subject:  "Welcome aboard",
			BodyHTML: "<h1>Welcome</h1>",
			Tag:      "welcome",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, receipt.MessageID)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		var htmlFile, jsonFile string
		for _, e := range entries {
			switch filepath.Ext(e.Name()) {
			case ".html":
				htmlFile = e.Name()
			case ".json":
				jsonFile = e.Name()
			}
		}
		require.NotEmpty(t, htmlFile)
		require.NotEmpty(t, jsonFile)
		assert.Contains(t, htmlFile, "welcome_aboard")

		html, err := os.ReadFile(filepath.Join(dir, htmlFile))
		require.NoError(t, err)
		assert.Equal(t, "<h1>Welcome</h1>", string(html))

		meta, err := os.ReadFile(filepath.Join(dir, jsonFile))
		require.NoError(t, err)
		assert.Contains(t, string(meta), receipt.MessageID)
		assert.Contains(t, string(meta), "ada@example.com")
	})

	t.Run("text body wrapped in pre", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		s := mailer.NewDevSender(dir)

		_, err := s.Send(ctx, mailer.Message{
			To:       "ada@example.com",
			Subject:  "Plain",
			BodyText: "plain text body",
		})
		require.NoError(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".html") {
				html, err := os.ReadFile(filepath.Join(dir, e.Name()))
				require.NoError(t, err)
				assert.Equal(t, "<pre>plain text body</pre>", string(html))
			}
		}
	})

	t.Run("invalid message never hits disk", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		s := mailer.NewDevSender(dir)

		_, err := s.Send(ctx, mailer.Message{To: "nope"})
		assert.ErrorIs(t, err, mailer.ErrInvalidMessage)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
