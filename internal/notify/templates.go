package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

const layout = `<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
{{ template "content" . }}
<p style="color:#888;font-size:12px">Estate Admin &middot; {{ now | date "2006" }}</p>
</body></html>`

const verificationContent = `{{ define "content" }}
<h2>Verify your email</h2>
<p>Hello {{ .FullName | default .Username }},</p>
<p>Your verification code is <strong style="font-size:20px;letter-spacing:4px">{{ .Code }}</strong>.</p>
<p>It expires at {{ .ExpiresAt | date "15:04 MST" }} ({{ .TTL }}).</p>
{{ end }}`

const approvalContent = `{{ define "content" }}
<h2>New administrator registration</h2>
<p>{{ .FullName | default "A new user" }} ({{ .Username }}, {{ .Email }}) has registered and is waiting for approval.</p>
<p>Relay this code to approve the account: <strong style="font-size:20px;letter-spacing:4px">{{ .Code }}</strong></p>
<p>The code expires at {{ .ExpiresAt | date "15:04 MST" }} ({{ .TTL }}).</p>
{{ end }}`

const passwordResetContent = `{{ define "content" }}
<h2>Reset your password</h2>
<p>Hello {{ .FullName | default .Username }},</p>
<p>Use the link below to choose a new password. It is valid for {{ .TTL }}.</p>
<p><a href="{{ .Link }}">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>
{{ end }}`

// OTPNotice carries everything an OTP email needs
type OTPNotice struct {
	Username  string
	Email     string
	FullName  string
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// ResetNotice carries everything a password reset email needs.
// Token is the raw opaque token and is never persisted.
type ResetNotice struct {
	Username string
	Email    string
	FullName string
	Token    string
	TTL      time.Duration
}

type templates struct {
	verification  *template.Template
	approval      *template.Template
	passwordReset *template.Template
}

func parseTemplates() (*templates, error) {
	parse := func(name, content string) (*template.Template, error) {
		t, err := template.New(name).Funcs(sprig.HtmlFuncMap()).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse layout: %w", err)
		}
		if _, err := t.Parse(content); err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		return t, nil
	}

	var (
		t   templates
		err error
	)
	if t.verification, err = parse("verification", verificationContent); err != nil {
		return nil, err
	}
	if t.approval, err = parse("approval", approvalContent); err != nil {
		return nil, err
	}
	if t.passwordReset, err = parse("password_reset", passwordResetContent); err != nil {
		return nil, err
	}
	return &t, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
