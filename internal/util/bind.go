package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// maxMultipartMemory bounds in-memory multipart parsing.
const maxMultipartMemory = 1 << 20

// DecodeForm reads a JSON, urlencoded or multipart body into a flat field
// map. Non-string JSON values are formatted with %v; nested objects are
// rejected.
func DecodeForm(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get(HeaderContentType))

	switch mediaType {
	case ContentTypeJSON:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, formError(err)
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			switch tv := v.(type) {
			case nil:
			case string:
				out[k] = tv
			case map[string]any, []any:
				return nil, NewValidationError(fmt.Sprintf("field %q must be a scalar", k))
			default:
				out[k] = fmt.Sprint(tv)
			}
		}
		return out, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, formError(err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, formError(err)
		}
	}

	out := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}

// formError keeps body-size failures distinguishable from malformed input.
func formError(err error) error {
	if errors.Is(err, ErrPayloadTooLarge) {
		return err
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
	}
	return NewValidationError("request body is not a valid form")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct checks v's `validate` tags. Failures come back as a
// *ValidationError keyed by JSON field name.
func ValidateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := NewValidationError("invalid request")
	for _, fe := range fieldErrs {
		verr.AddField(fe.Field(), describe(fe))
	}
	return verr
}

// Summary renders a validation error as one client-facing sentence.
func (e *ValidationError) Summary() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + e.Fields[name]
	}
	return strings.Join(parts, "; ")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "bcp47_language_tag":
		return "must be a BCP 47 language tag"
	default:
		return "is invalid"
	}
}
