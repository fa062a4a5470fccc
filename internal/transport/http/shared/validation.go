package shared

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"hrdash/internal/platform/validation"
	"hrdash/internal/transport/http/api"
)

type Validator struct {
	issues []validation.Issue
}

func NewValidator() *Validator {
	return &Validator{issues: make([]validation.Issue, 0, 4)}
}

func (v *Validator) Add(field, reason string) {
	if v == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	v.issues = append(v.issues, validation.Issue{Field: strings.TrimSpace(field), Reason: reason})
}

// AddIssues appends issues produced by struct validation.
func (v *Validator) AddIssues(issues []validation.Issue) {
	for _, issue := range issues {
		v.Add(issue.Field, issue.Reason)
	}
}

// PositiveInt parses an optional query parameter. Empty yields fallback.
func (v *Validator) PositiveInt(field, raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		v.Add(field, "must be a positive integer")
		return fallback
	}
	return n
}

// Bool parses an optional boolean query parameter.
func (v *Validator) Bool(field, raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		v.Add(field, "must be true or false")
		return false
	}
	return b
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

func (v *Validator) Issues() []validation.Issue {
	if v == nil || len(v.issues) == 0 {
		return nil
	}
	out := make([]validation.Issue, len(v.issues))
	copy(out, v.issues)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field == out[j].Field {
			return out[i].Reason < out[j].Reason
		}
		return out[i].Field < out[j].Field
	})
	return out
}

func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, requestID, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []validation.Issue) {
	api.FailWithDetails(
		w,
		http.StatusBadRequest,
		"validation_error",
		"payload validation failed",
		map[string]any{"fields": issues},
		requestID,
	)
}
