package utils

import (
	"strings"

	"outreachly/models"
)

// RenderedEmail is the output of template rendering
type RenderedEmail struct {
	Subject string
	Body    string
}

// RenderTemplate substitutes the fixed personalization placeholders in subject
// and body with the contact's attributes. Absent attributes become empty
// strings; placeholders outside the fixed set are left verbatim. Pure, no side
// effects, shared by the delivery loop and the follow-up dispatcher.
func RenderTemplate(subject, body string, contact *models.Contact) RenderedEmail {
	replacer := strings.NewReplacer(
		"{{first_name}}", contact.FirstName,
		"{{last_name}}", contact.LastName,
		"{{business_name}}", contact.BusinessName,
		"{{email}}", contact.Email,
		"{{phone}}", contact.Phone,
		"{{job_title}}", contact.JobTitle,
		"{{city}}", contact.City,
		"{{state}}", contact.State,
		"{{country}}", contact.Country,
		"{{linkedin_url}}", contact.LinkedInURL,
	)

	return RenderedEmail{
		Subject: replacer.Replace(subject),
		Body:    replacer.Replace(body),
	}
}
