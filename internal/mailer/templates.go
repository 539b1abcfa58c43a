package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
{{template "content" .}}
<p style="color:#888;font-size:12px">This is an automated message, please do not reply.</p>
</body></html>{{end}}`

var templates = map[string]string{
	"welcome": `{{define "content"}}<h2>Welcome, {{.Username}}!</h2>
<p>Your account has been created with the email <b>{{.Email}}</b>.</p>
<p>Your membership is pending review. You will be able to sign in once an administrator verifies it.</p>{{end}}`,

	"reset-link": `{{define "content"}}<h2>Password reset request</h2>
<p>We received a request to reset your password. The link below is valid for one hour.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>If you did not request this, you can ignore this email.</p>{{end}}`,

	"reset-confirmation": `{{define "content"}}<h2>Hello {{.Username}},</h2>
<p>Your password has been reset successfully. If this was not you, contact us immediately.</p>{{end}}`,

	"password-changed": `{{define "content"}}<h2>Hello {{.Username}},</h2>
<p>An administrator has reset the password for <b>{{.Email}}</b>.</p>
<p>Your new password is: <code>{{.Password}}</code></p>
<p>Please sign in and change it from your profile.</p>{{end}}`,

	"donation-receipt": `{{define "content"}}<h2>Thank you, {{.FullName}}!</h2>
<p>We received your donation of <b>${{.Amount}}</b>.</p>
<table>
<tr><td>Reference</td><td>{{.Reference}}</td></tr>
{{if .CardBrand}}<tr><td>Card</td><td>{{.CardBrand}} ending in {{.CardLast4}}</td></tr>{{end}}
{{if .Remarks}}<tr><td>Remarks</td><td>{{.Remarks}}</td></tr>{{end}}
</table>{{end}}`,
}

var compiled = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(templates))
	for name, body := range templates {
		t := template.Must(template.New(name).Parse(layout))
		out[name] = template.Must(t.Parse(body))
	}
	return out
}()

func render(name string, data any) (string, error) {
	t, ok := compiled[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Welcome greets a newly registered member. It never carries the password.
func Welcome(to, username string) (Message, error) {
	html, err := render("welcome", map[string]string{"Username": username, "Email": to})
	return Message{To: to, Subject: "Welcome to the association!", HTML: html}, err
}

func ResetLink(to, link string) (Message, error) {
	html, err := render("reset-link", map[string]string{"Link": link})
	return Message{To: to, Subject: "Password Reset Request", HTML: html}, err
}

func ResetConfirmation(to, username string) (Message, error) {
	html, err := render("reset-confirmation", map[string]string{"Username": username})
	return Message{To: to, Subject: "Password Reset Confirmation", HTML: html}, err
}

// PasswordChanged delivers an administrator-generated password.
func PasswordChanged(to, username, password string) (Message, error) {
	html, err := render("password-changed", map[string]string{
		"Username": username, "Email": to, "Password": password,
	})
	return Message{To: to, Subject: "Password Changed Successfully", HTML: html}, err
}

// Donation describes a completed charge for the receipt email.
type Donation struct {
	FullName  string
	Amount    string
	Reference string
	CardBrand string
	CardLast4 string
	Remarks   string
}

func DonationReceipt(to string, d Donation) (Message, error) {
	html, err := render("donation-receipt", d)
	return Message{To: to, Subject: "Donation Receipt", HTML: html}, err
}

var dataURLPrefix = regexp.MustCompile(`^data:image/png;base64,`)
var whitespace = regexp.MustCompile(`\s+`)

// IDCard attaches a rendered membership card PNG.
func IDCard(to, fullName string, png []byte) Message {
	name := whitespace.ReplaceAllString(strings.TrimSpace(fullName), "_")
	if name == "" {
		name = "member"
	}
	return Message{
		To:          to,
		Subject:     "Your ID Card",
		Text:        fmt.Sprintf("Dear %s,\n\nAttached is your membership ID Card.", fullName),
		Attachments: []Attachment{{Name: name + "_IDCard.png", Data: png}},
	}
}

// StripDataURL removes the data URL prefix a browser canvas export adds.
func StripDataURL(s string) string {
	return dataURLPrefix.ReplaceAllString(s, "")
}
