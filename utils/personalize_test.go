package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"teymur/models"
)

func testContact() *models.Contact {
	return &models.Contact{
		Email:     "aylin@example.com",
		FirstName: "Aylin",
		LastName:  "Demir",
		Company:   "Acme",
		Position:  "CTO",
		CustomFields: map[string]string{
			"Plan": "enterprise",
		},
	}
}

func TestPersonalizeCurlySyntax(t *testing.T) {
	got := Personalize("Hi {{first_name}}, greetings from {{ company }}!", testContact())
	assert.Equal(t, "Hi Aylin, greetings from Acme!", got)
}

func TestPersonalizePipeSyntax(t *testing.T) {
	got := Personalize("Dear *|FULL_NAME|*", testContact())
	assert.Equal(t, "Dear Aylin Demir", got)
}

func TestPersonalizeMixedSyntaxes(t *testing.T) {
	got := Personalize("{{first_name}} / *|LAST_NAME|*", testContact())
	assert.Equal(t, "Aylin / Demir", got)
}

func TestPersonalizeCustomFieldCaseInsensitive(t *testing.T) {
	got := Personalize("Your {{plan}} plan", testContact())
	assert.Equal(t, "Your enterprise plan", got)
}

func TestPersonalizeUnknownTokenBecomesEmpty(t *testing.T) {
	got := Personalize("Hello {{nickname}}!", testContact())
	assert.Equal(t, "Hello !", got)
}

func TestPersonalizeNilContactIsIdentity(t *testing.T) {
	got := Personalize("Hello {{first_name}}", nil)
	assert.Equal(t, "Hello {{first_name}}", got)
}

func TestPersonalizeLeavesPlainTextUntouched(t *testing.T) {
	text := "No placeholders here, just braces { } and pipes | |."
	assert.Equal(t, text, Personalize(text, testContact()))
}
