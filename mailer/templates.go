package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var (
	verifyTmpl = template.Must(template.New("verify").Parse(
		`<p>Hi {{.Name}},</p>
<p>Confirm your email address for {{.App}} by opening the link below. It expires in {{.TTL}}.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>If you did not create an account you can ignore this message.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`<p>Hi {{.Name}},</p>
<p>Someone asked to reset the password of your {{.App}} account. The link below expires in {{.TTL}}.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>If this was not you, no action is needed; your password is unchanged.</p>`))

	lockedTmpl = template.Must(template.New("locked").Parse(
		`<p>Hi {{.Name}},</p>
<p>Your {{.App}} account was locked after {{.Attempts}} failed sign-in attempts.</p>
{{if .Until}}<p>You can try again after {{.Until}}.</p>{{else}}<p>Contact support to unlock it.</p>{{end}}
<p>If these attempts were not you, reset your password once the lock ends.</p>`))

	unlockedTmpl = template.Must(template.New("unlocked").Parse(
		`<p>Hi {{.Name}},</p>
<p>Your {{.App}} account has been unlocked by an administrator.</p>`))
)

// Templates renders the account emails.
type Templates struct {
	AppName string
}

type templateData struct {
	App      string
	Name     string
	Link     string
	TTL      string
	Attempts int
	Until    string
}

func (t Templates) app() string {
	if t.AppName == "" {
		return "Job Tracker"
	}
	return t.AppName
}

func render(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailer: render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func greeting(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// Verification builds the email-verification message.
func (t Templates) Verification(to, name, link string, ttl time.Duration) (Message, error) {
	html, err := render(verifyTmpl, templateData{App: t.app(), Name: greeting(name), Link: link, TTL: ttl.String()})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Verify your email address",
		HTML:    html,
		Text:    "Verify your email address: " + link,
		Kind:    KindEmailVerification,
	}, nil
}

// PasswordReset builds the reset-link message.
func (t Templates) PasswordReset(to, name, link string, ttl time.Duration) (Message, error) {
	html, err := render(resetTmpl, templateData{App: t.app(), Name: greeting(name), Link: link, TTL: ttl.String()})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Reset your password",
		HTML:    html,
		Text:    "Reset your password: " + link,
		Kind:    KindPasswordReset,
	}, nil
}

// AccountLocked builds the lock notice. A nil until means a manual-only lock.
func (t Templates) AccountLocked(to, name string, attempts int, until *time.Time) (Message, error) {
	data := templateData{App: t.app(), Name: greeting(name), Attempts: attempts}
	if until != nil {
		data.Until = until.UTC().Format(time.RFC1123)
	}
	html, err := render(lockedTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your account has been locked", HTML: html, Kind: KindAccountLocked}, nil
}

// AccountUnlocked builds the unlock notice.
func (t Templates) AccountUnlocked(to, name string) (Message, error) {
	html, err := render(unlockedTmpl, templateData{App: t.app(), Name: greeting(name)})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your account has been unlocked", HTML: html, Kind: KindAccountUnlocked}, nil
}
