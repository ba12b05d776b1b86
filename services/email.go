package services

import (
	"fmt"
	"strings"

	"clinic_flow_app_go/config"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"
)

// Email represents an email message
type Email struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// SendEmail sends an email using the Resend API. In test mode the email
// is logged instead of sent.
func SendEmail(cfg *config.Config, email *Email) error {
	if cfg.EmailTestMode {
		log.Info().
			Strs("to", email.To).
			Str("subject", email.Subject).
			Str("body", truncate(email.TextBody, 500)).
			Msg("email (test mode, not sent)")
		return nil
	}

	if cfg.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY not configured")
	}
	if email.HTMLBody == "" && email.TextBody == "" {
		return fmt.Errorf("email must have either HTMLBody or TextBody")
	}

	client := resend.NewClient(cfg.ResendAPIKey)
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", cfg.EmailFromName, cfg.EmailFrom),
		To:      email.To,
		Subject: email.Subject,
	}
	if email.HTMLBody != "" {
		params.Html = email.HTMLBody
	}
	if email.TextBody != "" {
		params.Text = email.TextBody
	}

	sent, err := client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send email via Resend: %v", err)
	}
	log.Info().Str("id", sent.Id).Strs("to", email.To).Msg("email sent")
	return nil
}

// SendEmailAsync sends in a goroutine so handlers never block on SMTP
func SendEmailAsync(cfg *config.Config, email *Email) {
	emailCopy := &Email{
		To:       append([]string{}, email.To...),
		Subject:  email.Subject,
		HTMLBody: email.HTMLBody,
		TextBody: email.TextBody,
	}
	go func() {
		if err := SendEmail(cfg, emailCopy); err != nil {
			log.Error().Err(err).Msg("error sending async email")
		}
	}()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// BuildInvitationEmail creates the staff invitation email carrying the
// signup link.
func BuildInvitationEmail(toEmail, clinicName, signupLink, expiresAt string, roles []string) *Email {
	roleList := strings.Join(roles, "、")
	text := fmt.Sprintf(
		"您好，\n\n%s 邀請您加入診所團隊（角色：%s）。\n\n請透過以下連結完成註冊：\n%s\n\n此連結將於 %s 失效。",
		clinicName, roleList, signupLink, expiresAt)
	html := fmt.Sprintf(
		`<p>您好，</p><p><strong>%s</strong> 邀請您加入診所團隊（角色：%s）。</p><p><a href="%s">點此完成註冊</a></p><p>此連結將於 %s 失效。</p>`,
		clinicName, roleList, signupLink, expiresAt)
	return &Email{
		To:       []string{toEmail},
		Subject:  fmt.Sprintf("%s 邀請您加入", clinicName),
		HTMLBody: html,
		TextBody: text,
	}
}
