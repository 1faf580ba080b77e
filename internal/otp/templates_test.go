package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmail(t *testing.T) {
	html, plain, err := renderEmail(&EmailTemplate{
		TemplateName: templateName(PurposePasswordReset),
		Data:         map[string]interface{}{"code": "482913", "expiresIn": 10},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Reset your password")
	assert.Contains(t, html, "482913")
	assert.Contains(t, plain, "482913")
	assert.Contains(t, plain, "10 minutes")
}

func TestRenderEmail_UnknownTemplateFallsBackToPlainText(t *testing.T) {
	html, plain, err := renderEmail(&EmailTemplate{
		TemplateName: "missing",
		Data:         map[string]interface{}{"code": "111222", "expiresIn": 5},
	})
	require.NoError(t, err)
	assert.Empty(t, html)
	assert.Contains(t, plain, "111222")
}
