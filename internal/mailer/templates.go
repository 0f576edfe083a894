package mailer

import (
	"fmt"
	"html"
	"math"
	"time"
)

type emailBody struct {
	text string
	html string
}

func minutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

func registrationEmail(code string, validFor time.Duration) emailBody {
	m := minutes(validFor)
	return emailBody{
		text: fmt.Sprintf(
			"Welcome!\n\nYour registration code is: %s\n\nIt expires in %d minutes. If you did not request this, ignore this email.\n",
			code, m),
		html: fmt.Sprintf(`<p>Welcome!</p>
<p>Your registration code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p>
<p>It expires in %d minutes. If you did not request this, ignore this email.</p>`,
			html.EscapeString(code), m),
	}
}

func passwordResetEmail(code string, validFor time.Duration) emailBody {
	m := minutes(validFor)
	return emailBody{
		text: fmt.Sprintf(
			"A password reset was requested for your account.\n\nYour reset code is: %s\n\nIt expires in %d minutes. If you did not request this, your password is still safe and you can ignore this email.\n",
			code, m),
		html: fmt.Sprintf(`<p>A password reset was requested for your account.</p>
<p>Your reset code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p>
<p>It expires in %d minutes. If you did not request this, your password is still safe and you can ignore this email.</p>`,
			html.EscapeString(code), m),
	}
}
