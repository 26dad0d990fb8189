package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/campaign-api/pkg/errors"
)

var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

// phoneSeparators are stripped before the phone pattern is checked.
var phoneSeparators = strings.NewReplacer("-", "", "(", "", ")", "")

// Validator provides validation functionality
type Validator struct {
	validate *validator.Validate
}

var std = New()

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates obj against its `validate` tags and reports the first
// failing field as a validation error keyed by its json name.
func (v *Validator) Struct(obj interface{}) error {
	err := v.validate.Struct(obj)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.BadRequest("invalid input", err)
	}

	fe := verrs[0]
	return errors.Validation(fe.Field(), describe(fe))
}

// Email lowercases and checks an address.
func (v *Validator) Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := v.validate.Var(email, "required,email,max=255"); err != nil {
		return "", errors.Validation("email", "invalid email format")
	}
	return email, nil
}

// NormalizePhone strips whitespace and separators and requires a leading +
// followed by 10-15 digits.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Join(strings.Fields(raw), "")
	cleaned = phoneSeparators.Replace(cleaned)

	if !phonePattern.MatchString(cleaned) {
		return "", errors.Validation("phone_number",
			"phone number must start with + and country code, followed by 10-15 digits (e.g., +1234567890)")
	}
	return cleaned, nil
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(raw string) (string, error) {
	return std.Email(raw)
}

// Struct validates obj with the shared validator.
func Struct(obj interface{}) error {
	return std.Struct(obj)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("%s is required", fe.Field())
		}
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
	case "email":
		return "invalid email format"
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
