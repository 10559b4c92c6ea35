package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/geocoder89/identityhub/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	// field errors report the name the client sent
	v.RegisterTagNameFunc(jsonFieldName)

	// bcrypt's input limit is in bytes; "max" counts runes
	_ = v.RegisterValidation("maxbytes", maxBytes)
}

func jsonFieldName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return fl.Field().Kind() == reflect.String && len(fl.Field().String()) <= limit
}

// BindJSON decodes and validates the body into out. On failure it has already
// written the 400 (or 413) response.
func BindJSON(ctx *gin.Context, out any) bool {
	err := ctx.ShouldBindJSON(out)

	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError

	if errors.As(err, &tooLarge) {
		RespondTooLarge(ctx)
		return false
	}

	RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err))

	return false
}

func bindErrorDetails(err error) gin.H {
	var invalid validator.ValidationErrors

	if errors.As(err, &invalid) {
		fields := make([]FieldError, 0, len(invalid))

		for _, fe := range invalid {
			fields = append(fields, fieldError(fe.Field(), fe.Tag(), fe.Param()))
		}
		return gin.H{"fields": fields}
	}

	var typeErr *json.UnmarshalTypeError

	if errors.As(err, &typeErr) {
		// every request field is a string
		fe := FieldError{Field: typeErr.Field, Rule: "type", Message: "must be a string"}
		return gin.H{
			"json":   "invalid_json_type",
			"field":  fe.Field,
			"fields": []FieldError{fe},
		}
	}

	var syntaxErr *json.SyntaxError

	switch {
	case errors.Is(err, io.EOF):
		return gin.H{"json": "empty_body"}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return gin.H{"json": "invalid_json_syntax"}
	}

	// the raw decoder message is not echoed back
	return gin.H{"json": "invalid_json"}
}

func passwordTooLongDetails() gin.H {
	return gin.H{"fields": []FieldError{
		fieldError("password", "maxbytes", strconv.Itoa(user.MaxPasswordBytes)),
	}}
}

func fieldError(field, rule, param string) FieldError {
	return FieldError{
		Field:   field,
		Rule:    rule,
		Param:   param,
		Message: ruleMessage(field, rule, param),
	}
}

func ruleMessage(field, rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "maxbytes":
		return "must be at most " + param + " bytes"
	case "max":
		if field == "username" {
			return "must be at most " + param + " characters"
		}
		return "is too long"
	default:
		return "is invalid"
	}
}
