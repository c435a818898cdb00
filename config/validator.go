// Package config provides validation and sanitization for values read from
// the configuration file before they reach the scheduler or the Docker API.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error for field '%s': %s (value: %v)",
		e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Validator accumulates validation errors across many fields so a bad
// configuration file reports everything wrong with it at once.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field string, value any, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// ValidateRequired validates that a field is not empty
func (v *Validator) ValidateRequired(field string, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, value, "is required")
	}
}

// ValidateRange validates that a number is within range
func (v *Validator) ValidateRange(field string, value int, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field, value, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
	}
}

// ValidatePositive validates that a number is positive
func (v *Validator) ValidatePositive(field string, value int) {
	if value <= 0 {
		v.AddError(field, value, "must be positive")
	}
}

// ValidateURL validates that a string is a valid URL
func (v *Validator) ValidateURL(field string, value string) {
	if value == "" {
		return
	}

	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		v.AddError(field, value, "must be a valid URL")
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates that a string is a valid email, or a
// comma-separated list of them.
func (v *Validator) ValidateEmail(field string, value string) {
	if value == "" {
		return
	}

	for _, email := range strings.Split(value, ",") {
		if !emailRegex.MatchString(strings.TrimSpace(email)) {
			v.AddError(field, value, "must be a valid email address")
			return
		}
	}
}

// ValidateCronExpression validates a cron expression
func (v *Validator) ValidateCronExpression(field string, value string) {
	if value == "" {
		return
	}

	if strings.HasPrefix(value, "@") {
		validSpecial := []string{
			"@yearly", "@annually", "@monthly", "@weekly",
			"@daily", "@midnight", "@hourly", "@every",
			"@triggered", "@manual", "@none",
		}

		isValid := false
		for _, special := range validSpecial {
			if value == special || strings.HasPrefix(value, special+" ") {
				isValid = true
				break
			}
		}

		if !isValid {
			v.AddError(field, value, "invalid special cron expression")
		}
		return
	}

	parts := strings.Fields(value)
	if len(parts) < 5 || len(parts) > 6 {
		v.AddError(field, value, "must have 5 or 6 fields")
		return
	}

	cronRegex := regexp.MustCompile(`^[\d\*\-,/]+$`)
	for _, part := range parts {
		if !cronRegex.MatchString(part) && part != "?" {
			v.AddError(field, value, "contains invalid characters")
			return
		}
	}
}

// ValidateEnum validates that a value is in a list of allowed values
func (v *Validator) ValidateEnum(field string, value string, allowed []string) {
	if value == "" {
		return
	}

	if slices.Contains(allowed, value) {
		return
	}

	v.AddError(field, value, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidateAddress validates listen addresses like ":8080" or "127.0.0.1:8080"
func (v *Validator) ValidateAddress(field string, value string) {
	if value == "" {
		return
	}

	idx := strings.LastIndex(value, ":")
	if idx < 0 || value[idx+1:] == "" {
		v.AddError(field, value, "invalid address format")
	}
}

var validLogLevels = []string{"debug", "info", "notice", "warning", "error", "critical"}

// ValidateLogLevel validates a log level name
func (v *Validator) ValidateLogLevel(field string, value string) {
	if value == "" {
		return
	}

	if !slices.Contains(validLogLevels, strings.ToLower(value)) {
		v.AddError(field, value, "invalid log level (use: debug, info, notice, warning, error, critical)")
	}
}
