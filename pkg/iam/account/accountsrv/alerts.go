package accountsrv

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
)

type alertTemplate struct {
	subject string
	body    string
}

var alertTemplates = map[string]alertTemplate{
	account.AlertTwoFactorEnabled: {
		subject: "Two-factor authentication enabled",
		body: `<p>Hello {{.Login}},</p>
<p>Two-factor authentication was turned on for your account at {{.At.Format "2006-01-02 15:04 MST"}}{{if .IP}} from {{.IP}}{{end}}.</p>
<p>If this was not you, contact support immediately.</p>`,
	},
	account.AlertTwoFactorDisabled: {
		subject: "Two-factor authentication disabled",
		body: `<p>Hello {{.Login}},</p>
<p>Two-factor authentication was turned off for your account at {{.At.Format "2006-01-02 15:04 MST"}}{{if .IP}} from {{.IP}}{{end}}.</p>
<p>If this was not you, change your password and contact support.</p>`,
	},
	account.AlertPasswordChanged: {
		subject: "Your password was changed",
		body: `<p>Hello {{.Login}},</p>
<p>The password of your account was changed at {{.At.Format "2006-01-02 15:04 MST"}}{{if .IP}} from {{.IP}}{{end}}.</p>
<p>If this was not you, contact support immediately.</p>`,
	},
	account.AlertAccountBlocked: {
		subject: "Your account has been blocked",
		body: `<p>Hello {{.Login}},</p>
<p>An administrator blocked your account at {{.At.Format "2006-01-02 15:04 MST"}}. You can no longer sign in.</p>`,
	},
}

// AlertMailer renders security alerts and sends them by email.
type AlertMailer struct {
	client *notifx.Client
}

// NewAlertMailer registers the alert templates on client.
func NewAlertMailer(client *notifx.Client) (*AlertMailer, error) {
	for kind, t := range alertTemplates {
		if err := client.RegisterTemplate(kind, t.body); err != nil {
			return nil, err
		}
	}
	return &AlertMailer{client: client}, nil
}

func (m *AlertMailer) Send(ctx context.Context, alert account.SecurityAlert) error {
	t, ok := alertTemplates[alert.Kind]
	if !ok {
		return errx.Validation("unknown security alert").WithDetail("kind", alert.Kind)
	}
	return m.client.SendTemplatedEmail(ctx, alert.Kind, alert, notifx.EmailMessage{
		To:      []string{alert.Email},
		Subject: t.subject,
	})
}

// SecurityAlertHandler is the worker side of account.JobSecurityAlert.
func SecurityAlertHandler(mailer *AlertMailer) jobx.HandlerFunc {
	return func(ctx context.Context, job *jobx.JobInfo) error {
		var alert account.SecurityAlert
		if err := job.Decode(&alert); err != nil {
			return err
		}
		return mailer.Send(ctx, alert)
	}
}
