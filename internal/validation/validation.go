// Package validation turns request binding failures into field-level errors
// suitable for 400 responses.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned for malformed input.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// New builds a single-field validation error.
func New(field, message string) *Error {
	return &Error{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field error and returns the receiver.
func (e *Error) Add(field, message string) *Error {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}

// OrNil returns nil when no fields were recorded.
func (e *Error) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Respond writes a 400 with field-level details.
func Respond(c *gin.Context, err *Error) {
	details := err.Fields
	if details == nil {
		details = []FieldError{}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Validation error", "details": details})
}

// IsEmail reports whether s has a standard email shape.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// FromBinding converts a gin ShouldBindJSON error into an *Error.
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := &Error{}
		for _, fe := range verrs {
			out.Add(jsonName(fe.Field()), message(fe))
		}
		return out
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return New("body", "request body is required")
	case errors.As(err, &syntaxErr):
		return New("body", "malformed JSON")
	case errors.As(err, &typeErr):
		return New(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type.String()))
	default:
		return New("body", "invalid request payload")
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return "is invalid"
	}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	r := []rune(field)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
