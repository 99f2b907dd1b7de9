package testutil

// Sample inputs shared by tests. None of the values belong to real people.
const (
	// ContactText holds a person, an email address and a phone number.
	ContactText = "Contact John Doe at john.doe@example.com or (555) 123-4567."
	// ContactEmail is the email address in ContactText.
	ContactEmail = "john.doe@example.com"
	// ValidCard passes Luhn; InvalidCard differs in the check digit.
	ValidCard   = "4111 1111 1111 1111"
	InvalidCard = "4111 1111 1111 1112"
)
