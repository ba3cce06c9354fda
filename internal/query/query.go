// Package query holds the pure search and pagination helpers used by the
// review screens. Nothing here has side effects.
package query

import (
	"strconv"
	"strings"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

// FilterBySearch keeps the items where any extracted field contains term,
// ignoring case. A blank term returns items unchanged.
func FilterBySearch[T any](items []T, term string, fields func(T) []string) []T {
	term = strings.TrimSpace(term)
	if term == "" {
		return items
	}
	needle := strings.ToLower(term)

	out := make([]T, 0, len(items))
	for _, it := range items {
		for _, f := range fields(it) {
			if strings.Contains(strings.ToLower(f), needle) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// Paginate returns items[(page-1)*pageSize : page*pageSize], clamped to the
// slice. Out of range pages and non-positive arguments yield an empty slice.
func Paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return []T{}
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// PageCount is ceil(total/pageSize); zero items means zero pages.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

type Page[T any] struct {
	Items     []T `json:"items"`
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
	PageCount int `json:"pageCount"`
}

func NewPage[T any](items []T, page, pageSize int) Page[T] {
	return Page[T]{
		Items:     Paginate(items, page, pageSize),
		Page:      page,
		PageSize:  pageSize,
		Total:     len(items),
		PageCount: PageCount(len(items), pageSize),
	}
}

// ContactFields exposes the searchable fields of a contact.
func ContactFields(c model.Contact) []string {
	return []string{strconv.Itoa(c.ID), c.Name, c.Phone}
}

// SubmissionFields exposes the searchable fields of a submission.
func SubmissionFields(s model.Submission) []string {
	return []string{
		s.FileName,
		s.OwnerID,
		s.AcceptedTestContact.Name,
		s.AcceptedTestContact.Phone,
	}
}
