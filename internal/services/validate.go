package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"lms-dashboard-go/internal/models"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// JSON tag names in messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerEnum("course_status", "{0} must be one of draft, active, published, archived", func(v string) bool {
		return models.CourseStatus(v).Valid()
	})
	registerEnum("assignment_status", "{0} must be one of draft, published, archived", func(v string) bool {
		return models.AssignmentStatus(v).Valid()
	})
	registerEnum("role", "{0} must be one of student, tutor, admin", func(v string) bool {
		return models.Role(v).Valid()
	})
}

func registerEnum(tag, text string, valid func(string) bool) {
	_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return valid(fl.Field().String())
	})
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Validate checks v against its validate tags and returns a 400 ServiceError
// carrying the first translated message.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return ErrBadRequest(verrs[0].Translate(translator))
	}
	return ErrBadRequest("invalid input")
}
