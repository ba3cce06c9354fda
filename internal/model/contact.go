package model

// ReasonCode explains why a contact row failed validation.
type ReasonCode string

const (
	MissingName     ReasonCode = "missing_name"
	NameIsNumbers   ReasonCode = "name_is_numbers"
	MissingPhone    ReasonCode = "missing_phone"
	NoDigitsInPhone ReasonCode = "no_digits_in_phone"
)

// Contact is one (name, phone) row extracted from an imported file.
// Valid is true exactly when Reasons is empty.
type Contact struct {
	ID      int          `json:"id"`
	Name    string       `json:"name"`
	Phone   string       `json:"phone"`
	Valid   bool         `json:"valid"`
	Reasons []ReasonCode `json:"reasons"`
}

// ValidContacts returns the valid contacts in their original order.
func ValidContacts(contacts []Contact) []Contact {
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Valid {
			out = append(out, c)
		}
	}
	return out
}
