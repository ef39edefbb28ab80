// Package recorder implements the modality recorders: one per data type, each
// owning a single data stream of the active session.
package recorder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/zulandar/fieldnote/internal/record"
)

const notBlankTag = "notblank"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON field names instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(notBlankTag, notBlankValidation)
	return v
}

// notBlankValidation rejects strings that are empty after trimming.
func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return fl.Field().Kind() == reflect.String && strings.TrimSpace(fl.Field().String()) != ""
}

// validateStruct runs the validator and converts failures into a
// *record.ValidationError naming the offending fields.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return &record.ValidationError{Fields: fields}
	}
	return fmt.Errorf("recorder: validate: %w", err)
}

func requireGoal(goalID string) error {
	if goalID == "" {
		return record.ErrNoGoal
	}
	return nil
}
