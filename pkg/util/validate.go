package util

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
)

// structValidate is shared by every config type. It registers a "tmpl" tag
// that checks a string field parses as a text/template.
var structValidate *validator.Validate

func init() {
	structValidate = validator.New(validator.WithRequiredStructEnabled())
	_ = structValidate.RegisterValidation("tmpl", validateTemplate)
}

func validateTemplate(fl validator.FieldLevel) bool {
	_, err := template.New("check").Parse(fl.Field().String())
	return err == nil
}

// ValidateStruct runs the struct tags of v and flattens any failures into a
// single readable error.
func ValidateStruct(v any) error {
	err := structValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s'", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
