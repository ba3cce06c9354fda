package contacts

import (
	"strings"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/tabular"
)

var phoneHeaderHints = []string{"phone", "contact", "number"}

// Columns are the headers chosen for the name and phone values.
type Columns struct {
	Name  string
	Phone string
}

// FindColumns picks the first header containing "name" and the first header
// containing "phone", "contact" or "number", ignoring case. A header already
// taken as the name column is not reused for the phone.
func FindColumns(headers []string) (Columns, error) {
	var cols Columns
	for _, h := range headers {
		if strings.Contains(strings.ToLower(h), "name") {
			cols.Name = h
			break
		}
	}
	for _, h := range headers {
		if h == cols.Name {
			continue
		}
		lower := strings.ToLower(h)
		for _, hint := range phoneHeaderHints {
			if strings.Contains(lower, hint) {
				cols.Phone = h
				break
			}
		}
		if cols.Phone != "" {
			break
		}
	}

	if cols.Name == "" || cols.Phone == "" {
		return Columns{}, apperr.New(apperr.CodeMissingColumns, "import",
			`file must contain a "name" column and a "phone", "contact" or "number" column`)
	}
	return cols, nil
}

// Import validates every row of t. Rows with neither a name nor a phone are
// dropped; the others get sequential 1-based ids in source order.
func Import(t *tabular.Table) ([]model.Contact, error) {
	cols, err := FindColumns(t.Headers)
	if err != nil {
		return nil, err
	}

	out := make([]model.Contact, 0, len(t.Rows))
	for _, row := range t.Rows {
		name := strings.TrimSpace(row[cols.Name])
		phone := strings.TrimSpace(row[cols.Phone])
		if name == "" && phone == "" {
			continue
		}

		res := Validate(name, phone)
		out = append(out, model.Contact{
			ID:      len(out) + 1,
			Name:    name,
			Phone:   phone,
			Valid:   res.Valid,
			Reasons: res.Reasons,
		})
	}
	return out, nil
}
