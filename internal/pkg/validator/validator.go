package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Subscription plan validation
	validate.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
		plan := fl.Field().String()
		validPlans := []string{"weekly_trial", "annual"}
		for _, p := range validPlans {
			if plan == p {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email address"
		case "min":
			errors[field] = "Value is too short"
		case "max":
			errors[field] = "Value is too long"
		case "url":
			errors[field] = "Invalid URL"
		case "plan":
			errors[field] = "Unknown subscription plan"
		default:
			errors[field] = "Invalid value"
		}
	}
	return errors
}
