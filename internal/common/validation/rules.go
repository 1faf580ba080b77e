// internal/common/validation/rules.go
// Declarative per-field validation rules
// Each rule checks one request field with go-playground/validator tags

package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Global validator instance
var validate = validator.New()

const defaultMessage = "Invalid value"

// FieldError describes one failed check
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value"`
}

// step is either a validator tag or a sanitizer
type step struct {
	tag      string
	sanitize func(string) string
}

// Rule is an ordered list of checks and sanitizers for a single field.
// Every failing check reports the rule's message.
type Rule struct {
	field   string
	message string
	steps   []step
}

// Check starts a rule for the named field
func Check(field string) *Rule {
	return &Rule{field: field, message: defaultMessage}
}

// Field returns the field the rule targets
func (r *Rule) Field() string {
	return r.field
}

// Message returns the message reported on failure
func (r *Rule) Message() string {
	return r.message
}

// NotEmpty fails when the value is the empty string
func (r *Rule) NotEmpty() *Rule {
	return r.tag("required")
}

// MinLength fails when the value has fewer than n characters
func (r *Rule) MinLength(n int) *Rule {
	return r.tag(fmt.Sprintf("min=%d", n))
}

// MaxLength fails when the value has more than n characters
func (r *Rule) MaxLength(n int) *Rule {
	return r.tag(fmt.Sprintf("max=%d", n))
}

// IsIn fails when the value is not one of values
func (r *Rule) IsIn(values ...string) *Rule {
	return r.tag("oneof=" + strings.Join(values, " "))
}

// IsEmail fails when the value is not an email address
func (r *Rule) IsEmail() *Rule {
	return r.tag("email")
}

// NormalizeEmail canonicalises the address in place.
// An address that cannot be normalized becomes empty.
func (r *Rule) NormalizeEmail() *Rule {
	r.steps = append(r.steps, step{sanitize: func(v string) string {
		normalized, ok := NormalizeEmail(v)
		if !ok {
			return ""
		}
		return normalized
	}})
	return r
}

// WithMessage sets the message reported for every failing check
func (r *Rule) WithMessage(message string) *Rule {
	r.message = message
	return r
}

func (r *Rule) tag(tag string) *Rule {
	r.steps = append(r.steps, step{tag: tag})
	return r
}

// run applies the rule to in and returns its failures
func (r *Rule) run(in *Input) []FieldError {
	var errs []FieldError

	present := in.Has(r.field)
	value := in.Get(r.field)

	for _, s := range r.steps {
		if s.sanitize != nil {
			value = s.sanitize(value)
			if present {
				in.Set(r.field, value)
			}
			continue
		}

		if err := validate.Var(value, s.tag); err != nil {
			errs = append(errs, FieldError{
				Field:   r.field,
				Message: r.message,
				Value:   value,
			})
		}
	}

	return errs
}

// Chain is the ordered list of rules declared for a route
type Chain []*Rule

// Run applies every rule in order and accumulates all failures
func (c Chain) Run(in *Input) []FieldError {
	var errs []FieldError
	for _, rule := range c {
		errs = append(errs, rule.run(in)...)
	}
	return errs
}
