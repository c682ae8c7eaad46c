package forms

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"gtarp/main_backend/apperrors"
)

var (
	validate = validator.New()
	strict   = bluemonday.StrictPolicy()
)

func init() {
	// Report json names so messages match the form field keys.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks a payload against its struct rules and returns a
// validation error keyed by field.
func Validate(p Payload) error {
	return ValidateStruct(p)
}

// ValidateStruct applies the validate tags of any struct, such as a ticket
// request.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError("Validation failed", err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return apperrors.NewFieldValidationError("Validation failed", fields)
}

func fieldMessage(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

// Sanitize strips markup from every string field in place and trims spaces.
func Sanitize(p Payload) {
	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(CleanText(f.String()))
		}
	}
}

// textEntities decodes the entities the policy emits for plain punctuation.
// Angle brackets stay escaped so escaped markup never turns back into tags.
var textEntities = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", "\"", "&quot;", "\"")

// CleanText removes HTML from free text. "Tom & Jerry" survives unchanged.
func CleanText(s string) string {
	return strings.TrimSpace(textEntities.Replace(strict.Sanitize(s)))
}
