package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/utils"
)

// messages maps "<json field>.<tag>" to the client-facing message.
var messages = map[string]string{
	"email.required":        "Please provide a valid email address",
	"email.email":           "Please provide a valid email address",
	"password.required":     "Password is required",
	"firstName.required":    "First name is required",
	"lastName.required":     "Last name is required",
	"role.required":         "Please provide a valid role, must be one of user, admin",
	"role.oneof":            "Please provide a valid role, must be one of user, admin",
	"isActive.required":     "isActive must be a boolean",
	"refreshToken.required": "Refresh token is required",
	"title.required":        "Title must be at least 3 characters",
	"title.min":             "Title must be at least 3 characters",
	"title.max":             "Title cannot exceed 100 characters",
	"description.required":  "Description must be at least 10 characters",
	"description.min":       "Description must be at least 10 characters",
	"description.max":       "Description cannot exceed 1000 characters",
	"status.oneof":          "Status must be one of pending, completed",
}

// RequestValidator adapts go-playground/validator to echo.Validator and
// turns violations into a 400 whose message is the first violation.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return utils.CheckPasswordPolicy(fl.Field().String()) == nil
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.Validation(fields[0].Message, fields...)
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Tag() == "password" {
		if err := utils.CheckPasswordPolicy(fmt.Sprint(fe.Value())); err != nil {
			return err.Error()
		}
	}
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// bind decodes the request body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return c.Validate(dst)
}
