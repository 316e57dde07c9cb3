package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/sparkbridge/server/internal/server/models"
)

var registerOnce sync.Once

// registerValidators adds the attendee_type rule to gin's validator and makes
// error field names follow the json tags.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("attendee_type", func(fl validator.FieldLevel) bool {
			return models.AttendeeType(fl.Field().String()).Valid()
		})
	})
}

var fieldMessages = map[string]string{
	"required":      "%s is required",
	"email":         "Valid %s is required",
	"min":           "%s must be at least %s characters long",
	"max":           "%s must be no longer than %s characters",
	"attendee_type": "Invalid %s",
}

// validationDetails turns binding errors into field -> message pairs. It
// returns nil when err is not a validation failure (e.g. malformed JSON).
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		tmpl, ok := fieldMessages[fe.Tag()]
		if !ok {
			out[field] = fmt.Sprintf("%s is invalid", field)
			continue
		}
		if strings.Count(tmpl, "%s") == 2 {
			out[field] = fmt.Sprintf(tmpl, field, fe.Param())
		} else {
			out[field] = fmt.Sprintf(tmpl, field)
		}
	}
	return out
}
