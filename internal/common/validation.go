package common

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FieldError is a single rule violation collected by Validator.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// Validator provides validation utilities
type Validator struct {
	errors []FieldError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]FieldError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Error returns nil or a CONFIG_ERROR wrapping ErrInvalidInput.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *FieldError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *FieldError {
	if value == nil {
		return &FieldError{Field: fieldName, Value: value, Message: "is required"}
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return &FieldError{Field: fieldName, Value: value, Message: "is required"}
	}
	return nil
}

func Positive(fieldName string, value interface{}) *FieldError {
	switch v := value.(type) {
	case int:
		if v <= 0 {
			return &FieldError{Field: fieldName, Value: value, Message: "must be positive"}
		}
	case time.Duration:
		if v <= 0 {
			return &FieldError{Field: fieldName, Value: value, Message: "must be positive"}
		}
	}
	return nil
}

func HTTPURL(fieldName string, value interface{}) *FieldError {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &FieldError{Field: fieldName, Value: value, Message: "must be an http(s) URL"}
	}
	return nil
}

// OneOf builds a rule accepting only the listed strings.
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value interface{}) *FieldError {
		s, _ := value.(string)
		for _, a := range allowed {
			if strings.EqualFold(s, a) {
				return nil
			}
		}
		return &FieldError{
			Field:   fieldName,
			Value:   value,
			Message: "must be one of " + strings.Join(allowed, ", "),
		}
	}
}

// IsConfigError reports whether err came out of Config.Validate.
func IsConfigError(err error) bool {
	ae, ok := AsAppError(err)
	return ok && ae.Code == CodeConfig && errors.Is(err, ErrInvalidInput)
}
