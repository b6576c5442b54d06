package resource

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the name rule shared by every kind, then the struct tags
// of item.
func Validate(item Entity) error {
	var fields []FieldError
	if strings.TrimSpace(item.DisplayName()) == "" {
		fields = append(fields, FieldError{Field: "name", Reason: "is required"})
	}

	if err := validate.Struct(item); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		for _, fe := range ve {
			if fe.Field() == "name" && len(fields) > 0 && fields[0].Field == "name" {
				continue
			}
			fields = append(fields, FieldError{Field: fe.Field(), Reason: reason(fe)})
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}
