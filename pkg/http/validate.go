package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ReadAndValidateRequest binds query and body into req, fills `default` tags
// and validates it. It returns []ValidationError on failure, nil otherwise.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, fieldError(fe))
		}
		return out
	}

	// Bind failures: malformed JSON or a query value of the wrong type.
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_BAD_REQUEST", Message: msg}}
}

func fieldError(fe validator.FieldError) ValidationError {
	field, param := strings.ToLower(fe.Field()), fe.Param()
	ve := ValidationError{Code: "ERR_" + strings.ToUpper(fe.Tag()), Field: field}

	switch fe.Tag() {
	case "required":
		ve.Message = field + " is required"
	case "max":
		ve.Message = fmt.Sprintf("%s must be at most %s characters", field, param)
		ve.Params = map[string]interface{}{"max": param}
	case "gte":
		ve.Message = fmt.Sprintf("%s must be %s or more", field, param)
		ve.Params = map[string]interface{}{"min": param}
	case "lte":
		ve.Message = fmt.Sprintf("%s must be %s or less", field, param)
		ve.Params = map[string]interface{}{"max": param}
	case "oneof":
		options := strings.Fields(param)
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(options, ", "))
		ve.Params = map[string]interface{}{"options": options}
	default:
		ve.Message = fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
	return ve
}
