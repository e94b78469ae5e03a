package utils

import (
	"regexp"
	"strings"

	"teymur/models"
)

// Placeholders come in two equivalent syntaxes: {{first_name}} and
// *|FIRST_NAME|*. Token names are case-insensitive.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}|\*\|\s*([A-Za-z0-9_]+)\s*\|\*`)

// Personalize substitutes placeholder tokens in subject or body text with
// the contact's field values. Unknown tokens resolve to the empty string.
func Personalize(text string, contact *models.Contact) string {
	if contact == nil {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		token := sub[1]
		if token == "" {
			token = sub[2]
		}
		return contactField(contact, strings.ToLower(token))
	})
}

func contactField(contact *models.Contact, token string) string {
	switch token {
	case "first_name":
		return contact.FirstName
	case "last_name":
		return contact.LastName
	case "full_name":
		return strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	case "email":
		return contact.Email
	case "company":
		return contact.Company
	case "position":
		return contact.Position
	case "phone":
		return contact.Phone
	}

	for key, value := range contact.CustomFields {
		if strings.ToLower(key) == token {
			return value
		}
	}
	return ""
}
