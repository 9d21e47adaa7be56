package users

import (
	"net/http"
	"strings"
	"time"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// Store key prefixes.
const (
	PrefixUsers        = "users"
	PrefixUsersByEmail = "users_by_email"
)

var (
	// ErrEmailTaken is returned when the email index is already claimed.
	ErrEmailTaken = util.NewHTTPErrorWithCause(http.StatusConflict, "Email already registered", util.ErrConflict)

	// ErrUserNotFound is returned for unknown user IDs.
	ErrUserNotFound = util.NewHTTPErrorWithCause(http.StatusNotFound, "User not found", util.ErrNotFound)

	// ErrInvalidCredentials hides which of email or password was wrong.
	ErrInvalidCredentials = util.NewHTTPErrorWithCause(http.StatusUnauthorized,
		"Invalid email or password", util.ErrUnauthenticated)
)

// User is the stored account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity projects the user for the auth gate.
func (u User) Identity() auth.Identity {
	return auth.Identity{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}

// PublicUser is a user without credentials.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sanitize strips the password hash.
func Sanitize(u User) PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// SanitizeAll strips password hashes from every user.
func SanitizeAll(list []User) []PublicUser {
	out := make([]PublicUser, len(list))
	for i, u := range list {
		out[i] = Sanitize(u)
	}
	return out
}

// Registration is the sign-up input. bcrypt ignores bytes past 72, hence
// the password cap.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Credentials is the login input.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// NormalizeEmail lower-cases and trims an address so the index is case
// insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
