package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/prperemyshlev/estate-auth/internal/config"
)

// OTPNotifier decides who receives a freshly issued OTP and sends it
type OTPNotifier interface {
	NotifyOTP(ctx context.Context, notice OTPNotice) error
	// RecipientHint tells the registrant where the code will arrive.
	RecipientHint() string
}

// ResetNotifier sends password reset links
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, notice ResetNotice) error
}

// Notifier bundles the OTP strategy with password reset delivery
type Notifier struct {
	OTP   OTPNotifier
	Reset ResetNotifier
}

// NotifyRegistrant sends a verification email to the account owner
type NotifyRegistrant struct {
	mailer Mailer
	tmpl   *templates
}

// NotifyApprovers sends an approval email with the code to a fixed admin list
type NotifyApprovers struct {
	mailer     Mailer
	tmpl       *templates
	recipients []string
}

type resetNotifier struct {
	mailer   Mailer
	tmpl     *templates
	resetURL string
}

// NewNotifier selects the OTP strategy from configuration once
func NewNotifier(mailer Mailer, reg config.RegistrationConfig, resetURL string) (*Notifier, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	var otp OTPNotifier = &NotifyRegistrant{mailer: mailer, tmpl: tmpl}
	if reg.NotifyApprovers() {
		otp = &NotifyApprovers{mailer: mailer, tmpl: tmpl, recipients: reg.AdminOTPRecipients}
	}

	return &Notifier{
		OTP:   otp,
		Reset: &resetNotifier{mailer: mailer, tmpl: tmpl, resetURL: resetURL},
	}, nil
}

func (n *NotifyRegistrant) NotifyOTP(ctx context.Context, notice OTPNotice) error {
	body, err := render(n.tmpl.verification, notice)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		To:       []string{notice.Email},
		Subject:  "Verify your email address",
		HTMLBody: body,
	})
}

func (n *NotifyRegistrant) RecipientHint() string {
	return "Please check your email for the verification code."
}

func (n *NotifyApprovers) RecipientHint() string {
	return "An administrator will provide the verification code once the account is approved."
}

func (n *NotifyApprovers) NotifyOTP(ctx context.Context, notice OTPNotice) error {
	body, err := render(n.tmpl.approval, notice)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		To:       n.recipients,
		Subject:  fmt.Sprintf("Approval required for %s", notice.Username),
		HTMLBody: body,
	})
}

func (n *resetNotifier) NotifyPasswordReset(ctx context.Context, notice ResetNotice) error {
	body, err := render(n.tmpl.passwordReset, resetView{
		ResetNotice: notice,
		Link:        ResetLink(n.resetURL, notice.Token, notice.Email),
	})
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		To:       []string{notice.Email},
		Subject:  "Reset your password",
		HTMLBody: body,
	})
}

type resetView struct {
	ResetNotice
	Link string
}

// ResetLink embeds the raw token and the email in the reset page URL
func ResetLink(base, token, email string) string {
	return base + "?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email)
}
