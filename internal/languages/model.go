package languages

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/langgate/internal/util"
)

// Store key prefixes.
const (
	PrefixLanguages       = "languages"
	PrefixLanguagesByCode = "languages_by_code"
)

// Page size bounds for List.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	// ErrCodeTaken is returned when another language already uses the code.
	ErrCodeTaken = util.NewHTTPErrorWithCause(http.StatusConflict, "The code is already in use", util.ErrConflict)

	// ErrLanguageNotFound is returned for unknown IDs and codes.
	ErrLanguageNotFound = util.NewHTTPErrorWithCause(http.StatusNotFound, "Language not found", util.ErrNotFound)

	// ErrInvalidLimit is returned for limits outside 1..MaxLimit.
	ErrInvalidLimit = util.NewHTTPErrorWithCause(http.StatusBadRequest,
		"The 'limit' parameter must be a number between 1 and 100", util.ErrInvalidInput)

	// ErrInvalidCursor is returned for cursors the store cannot decode.
	ErrInvalidCursor = util.NewHTTPErrorWithCause(http.StatusBadRequest,
		"The 'cursor' parameter is invalid", util.ErrInvalidInput)
)

// Language is a catalogue entry.
type Language struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewLanguage is the add input.
type NewLanguage struct {
	Name string `json:"name" validate:"required,max=100"`
	Code string `json:"code" validate:"required,max=35,bcp47_language_tag"`
}

// Page is one page of List.
type Page struct {
	Languages []Language `json:"languages"`
	Cursor    string     `json:"cursor"`
}
