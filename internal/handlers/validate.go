package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"agora/internal/models"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// categoryRequest is the body of create and update calls.
type categoryRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"omitempty,max=300"`
}

// reorderRequest is the body of a reorder call.
type reorderRequest struct {
	Items []models.ReorderItem `json:"items" validate:"required,min=1,dive"`
}

// decodeJSON reads a JSON body into dst and validates it. The returned
// message is safe to show to the client.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) string {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return "Request body is required."
		case errors.As(err, &maxErr):
			return "Request body is too large."
		default:
			return "Malformed JSON: " + err.Error()
		}
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return ""
}

// validationMessage renders the first field error as a sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request."
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", field)
	case "max":
		return fmt.Sprintf("%s is too long (max %s characters).", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries.", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s.", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", field)
	}
}
