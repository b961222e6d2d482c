// Package web decodes, validates and answers JSON requests.
package web

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/adamwoolhether/deltapipe/web/errs"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("web: failed to get 'en' translator")
	}

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})
}

// Validate checks val against its declared tags. Failures are returned
// as errs.FieldErrors keyed by JSON field name.
func Validate(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	verrors, ok := errors.AsType[validator.ValidationErrors](err)
	if !ok {
		return err
	}

	fields := make(errs.FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		fields = append(fields, errs.FieldError{
			Field: verror.Field(),
			Err:   customErrForTag(verror.Tag(), verror),
		})
	}

	return fields
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "This field is required"
	default:
		return verror.Translate(translator)
	}
}
