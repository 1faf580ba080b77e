// internal/otp/templates.go

package otp

import (
	"bytes"
	"fmt"
	"html/template"
)

const baseStyle = `font-family: Arial, sans-serif; max-width: 480px; margin: 0 auto; color: #222;`

var emailTemplates = map[string]*template.Template{
	"otp_verification": template.Must(template.New("otp_verification").Parse(`
<div style="` + baseStyle + `">
  <h2>Confirm your email</h2>
  <p>Use the code below to verify your account.</p>
  <p style="font-size: 28px; letter-spacing: 6px;"><strong>{{.code}}</strong></p>
  <p>This code expires in {{.expiresIn}} minutes.</p>
</div>`)),
	"password_reset": template.Must(template.New("password_reset").Parse(`
<div style="` + baseStyle + `">
  <h2>Reset your password</h2>
  <p>Someone asked to reset the password of this account. If that was you, enter this code:</p>
  <p style="font-size: 28px; letter-spacing: 6px;"><strong>{{.code}}</strong></p>
  <p>This code expires in {{.expiresIn}} minutes. If you did not ask for a reset you can ignore this email.</p>
</div>`)),
}

func templateName(purpose Purpose) string {
	if purpose == PurposePasswordReset {
		return "password_reset"
	}
	return "otp_verification"
}

// renderEmail returns the HTML and plain text bodies of a template
func renderEmail(emailData *EmailTemplate) (string, string, error) {
	plain := fmt.Sprintf("Your verification code is: %v\n\nThis code will expire in %v minutes.",
		emailData.Data["code"], emailData.Data["expiresIn"])

	tmpl, ok := emailTemplates[emailData.TemplateName]
	if !ok {
		return "", plain, nil
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, emailData.Data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}

	return body.String(), plain, nil
}
