package shared

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"salaryrules/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects request field problems so they are reported together.
type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{issues: make([]ValidationIssue, 0, 4)}
}

func (v *Validator) Add(field, reason string) {
	if v == nil {
		return
	}
	field = strings.TrimSpace(field)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	v.issues = append(v.issues, ValidationIssue{Field: field, Reason: reason})
}

func (v *Validator) Required(field, value, reason string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, reason)
	}
}

// Identifier requires value to be a code made of letters, digits, '_' or
// '-'.
func (v *Validator) Identifier(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		v.Add(field, "is required")
		return
	}
	for _, c := range value {
		if c != '_' && c != '-' && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			v.Add(field, "may only contain letters, digits, '_' and '-'")
			return
		}
	}
}

func (v *Validator) Count(field string, n, min, max int) {
	switch {
	case n < min:
		v.Add(field, fmt.Sprintf("must contain at least %d item(s)", min))
	case max > 0 && n > max:
		v.Add(field, fmt.Sprintf("must contain at most %d items", max))
	}
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

func (v *Validator) Issues() []ValidationIssue {
	if v == nil || len(v.issues) == 0 {
		return nil
	}
	out := make([]ValidationIssue, len(v.issues))
	copy(out, v.issues)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field == out[j].Field {
			return out[i].Reason < out[j].Reason
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func (v *Validator) Reject(w http.ResponseWriter, r *http.Request) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, r, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, r *http.Request, issues []ValidationIssue) {
	api.FailWithDetails(w, r, http.StatusBadRequest, "validation_error", "payload validation failed",
		map[string]any{"fields": issues})
}
