package users

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Mode is the role a user picked when signing up.
type Mode string

const (
	ModeStudent Mode = "Student"
	ModeTeacher Mode = "Teacher"
	ModeParents Mode = "Parents"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStudent, ModeTeacher, ModeParents:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown user mode %q", s)
}

// Connect records an external identity provider linked to the account.
type Connect struct {
	Provider string `json:"account_type"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type User struct {
	ID            string    `json:"id,omitempty"`       // Unique identifier for the user
	Username      string    `json:"username,omitempty"` // Display name
	Email         string    `json:"email,omitempty"`    // Normalised email address, unique per store
	PasswordHash  string    `json:"-"`                  // Empty for accounts created through OAuth
	VerifiedEmail bool      `json:"verified_email"`     // Has the user proved ownership of Email
	Modes         []Mode    `json:"modes,omitempty"`
	Connects      []Connect `json:"connects,omitempty"`
	LoginIPs      []string  `json:"-"` // Audit trail of client IPs that signed in
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ConnectedProviders returns the sorted distinct provider names linked to the account.
func (u *User) ConnectedProviders() []string {
	seen := make(map[string]struct{}, len(u.Connects))
	providers := make([]string, 0, len(u.Connects))
	for _, c := range u.Connects {
		if _, ok := seen[c.Provider]; ok {
			continue
		}
		seen[c.Provider] = struct{}{}
		providers = append(providers, c.Provider)
	}
	sort.Strings(providers)
	return providers
}

// Clone returns a deep copy so stores never hand out shared slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Modes = append([]Mode(nil), u.Modes...)
	c.Connects = append([]Connect(nil), u.Connects...)
	c.LoginIPs = append([]string(nil), u.LoginIPs...)
	return &c
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaxPasswordBytes is the longest password bcrypt accepts, counted in bytes.
const MaxPasswordBytes = 72

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
