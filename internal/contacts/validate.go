// Package contacts classifies imported rows as valid or invalid contacts.
//
// Validation is deliberately permissive: a phone number only needs at least
// one digit, and any punctuation or country-code style is accepted.
package contacts

import (
	"regexp"
	"strings"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Result is the verdict for one (name, phone) pair.
type Result struct {
	Valid   bool
	Reasons []model.ReasonCode
}

// Validate applies the row rules. Name reasons come before phone reasons.
func Validate(name, phone string) Result {
	reasons := []model.ReasonCode{}

	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)

	if name == "" {
		reasons = append(reasons, model.MissingName)
	} else if digitsOnly.MatchString(name) {
		reasons = append(reasons, model.NameIsNumbers)
	}

	if phone == "" {
		reasons = append(reasons, model.MissingPhone)
	} else if countDigits(phone) == 0 {
		reasons = append(reasons, model.NoDigitsInPhone)
	}

	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Revalidate re-runs validation for an existing row with corrected values.
// The row keeps its id.
func Revalidate(c model.Contact, name, phone string) model.Contact {
	res := Validate(name, phone)
	return model.Contact{
		ID:      c.ID,
		Name:    strings.TrimSpace(name),
		Phone:   strings.TrimSpace(phone),
		Valid:   res.Valid,
		Reasons: res.Reasons,
	}
}

type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

func Summarize(list []model.Contact) Stats {
	s := Stats{Total: len(list)}
	for _, c := range list {
		if c.Valid {
			s.Valid++
		}
	}
	s.Invalid = s.Total - s.Valid
	return s
}
