// Package validation checks request payloads with go-playground/validator and
// reports failures as common.InvalidInput errors.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/go-playground/validator/v10"
)

const (
	nameMin     = 5
	nameMax     = 100
	passwordMin = 8
	passwordMax = 100
)

var messages = map[string]string{
	"username": "Name must be between 5 and 100 characters and cannot start or end with whitespace",
	"password": "Password must be between 8 and 100 characters and contain at least one lowercase letter, one uppercase letter and one digit",
	"email":    "Invalid email",
	"required": "Field is required",
	"numeric":  "Must contain digits only",
	"hexbytes": "Must be a hex string",
	"oneof":    "Unsupported value",
}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && len(s)%2 == 0 && strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
	})

	return &Validator{v: v}
}

// Struct validates s. Failures are joined into one InvalidInput message of
// the form "field: message, field: message".
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.InvalidInput(err.Error())
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		parts = append(parts, fe.Field()+": "+msg)
	}
	return common.InvalidInput(strings.Join(parts, ", "))
}

// ValidName accepts 5 to 100 characters without surrounding whitespace.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return false
	}
	n := utf8.RuneCountInString(s)
	return n >= nameMin && n <= nameMax
}

// ValidPassword accepts 8 to 100 characters with at least one ASCII
// lowercase letter, uppercase letter and digit.
func ValidPassword(s string) bool {
	if len(s) < passwordMin || len(s) > passwordMax {
		return false
	}
	var lower, upper, digit bool
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		}
	}
	return lower && upper && digit
}
