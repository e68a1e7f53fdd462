package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevSender writes outgoing mail to a directory as .html and .json files
// instead of calling a provider. Useful for local development and demos.
type DevSender struct {
	dir string
}

// NewDevSender creates a development sender rooted at dir. The directory is
// created lazily on first send.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir}
}

func (d *DevSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output directory: %v", ErrSendFailed, err)
	}

	id := uuid.New().String()
	base := fmt.Sprintf("%s_%s", time.Now().Format("2006_01_02_150405"), sanitizeFilename(msg.Subject))

	body := msg.BodyHTML
	if body == "" {
		body = "<pre>" + msg.BodyText + "</pre>"
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("%w: write html: %v", ErrSendFailed, err)
	}

	meta, err := json.MarshalIndent(map[string]string{
		"message_id": id,
		"to":         msg.To,
		"subject":    msg.Subject,
		"tag":        msg.Tag,
		"sent_at":    time.Now().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %v", ErrSendFailed, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write metadata: %v", ErrSendFailed, err)
	}

	return &Receipt{MessageID: id}, nil
}

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = filenameRegex.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
