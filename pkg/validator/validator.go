package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

type structValidator struct {
	v *validator.Validate
}

// New returns a validator reading `validate` struct tags.
func New() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return &structValidator{v: v}
}

// UseJSONNames makes an existing engine (gin's binding validator) report
// fields by their json names.
func UseJSONNames(v *validator.Validate) {
	v.RegisterTagNameFunc(jsonName)
}

func (s *structValidator) Validate(obj interface{}) error {
	if err := s.v.Struct(obj); err != nil {
		return translate(err)
	}
	return nil
}

func (s *structValidator) ValidateField(field string, value interface{}, rules string) error {
	if err := s.v.Var(value, rules); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("%s %s", field, describe(verrs[0]))
		}
		return err
	}
	return nil
}

// FieldError describes one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned by Validate when one or more constraints fail.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Translate converts validator/v10 errors into Errors, leaving others untouched.
func Translate(err error) error {
	return translate(err)
}

func translate(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid", "uuid4":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
