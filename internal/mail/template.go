package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templates embed.FS

var resetTemplate = template.Must(template.ParseFS(templates, "templates/reset_password.html"))

const (
	ResetSubject = "Reset your password"

	defaultRecipientName = "User"
)

// Values rendered into password reset email
// Everything is escaped by html/template
type ResetEmail struct {
	Link          string
	Name          string
	SupportEmail  string
	ExpiryMinutes int
}

func RenderResetEmail(data ResetEmail) (string, error) {
	if data.Name == "" {
		data.Name = defaultRecipientName
	}

	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("can't render reset email. Err: %w", err)
	}

	return buf.String(), nil
}
