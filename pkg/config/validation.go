package config

import (
	"reflect"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond `required` tags. Validate runs after the required checks pass.
// Errors that are not already *sserr.Error are wrapped with
// [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, isSSErr := sserr.AsError(err); isSSErr {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateRequired walks the struct and reports the first `required`
// field that is still zero, using its dotted path ("Auth.JWKSURL").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
