package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"fotoljay/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Maximum JSON body accepted by DecodeAndValidate
const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by the name clients send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// decision: a status a moderator may set on a pending listing
	_ = v.RegisterValidation("decision", func(fl validator.FieldLevel) bool {
		s := domain.ListingStatus(fl.Field().String())
		return s == domain.StatusValidated || s == domain.StatusRejected
	})
	// listing_status: any known lifecycle status
	_ = v.RegisterValidation("listing_status", func(fl validator.FieldLevel) bool {
		return domain.ListingStatus(fl.Field().String()).Valid()
	})
	return v
}

// ValidateRequest checks v against its validate tags
func ValidateRequest(v interface{}) error {
	return validate.Struct(v)
}

// DecodeAndValidate reads a JSON body of at most 1MiB into v and validates it
func DecodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return ValidateRequest(v)
}

// ValidationError is one rejected field
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// FormatValidationErrors flattens validator errors. Anything else yields nil.
func FormatValidationErrors(err error) []ValidationError {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return nil
	}

	out := make([]ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// RespondWithDecodeError answers a failed DecodeAndValidate call
func RespondWithDecodeError(w http.ResponseWriter, err error) {
	if details := FormatValidationErrors(err); details != nil {
		RespondWithValidationErrors(w, details)
		return
	}
	RespondWithError(w, http.StatusBadRequest, "invalid request body")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "decision":
		return fmt.Sprintf("%s must be %s or %s", field, domain.StatusValidated, domain.StatusRejected)
	case "boolean":
		return field + " must be true or false"
	case "uuid":
		return field + " must be a UUID"
	case "listing_status":
		return field + " is not a known listing status"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be %s or less", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
