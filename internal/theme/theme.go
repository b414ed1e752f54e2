// Package theme holds the two-state light/dark color-scheme preference.
package theme

import (
	"errors"
	"fmt"
	"net/http"
)

// Theme is a persisted UI color-scheme preference.
type Theme string

const (
	Dark  Theme = "dark"
	Light Theme = "light"

	// Default applies when no valid preference has been stored.
	Default = Dark

	// CookieName matches the key the browser keeps in local storage.
	CookieName = "theme"
)

// ErrInvalid is returned by Parse for anything other than "light" or "dark".
var ErrInvalid = errors.New(`theme must be "light" or "dark"`)

// Parse returns the Theme named by s. Matching is exact.
func Parse(s string) (Theme, error) {
	switch Theme(s) {
	case Dark, Light:
		return Theme(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
}

// OrDefault parses s, falling back to Default.
func OrDefault(s string) Theme {
	t, err := Parse(s)
	if err != nil {
		return Default
	}
	return t
}

// Toggle returns the other theme. Unknown values toggle from Default.
func (t Theme) Toggle() Theme {
	if t == Light {
		return Dark
	}
	return Light
}

// Icon is the Font Awesome icon shown on the toggle button.
func (t Theme) Icon() string {
	if t == Light {
		return "fa-sun"
	}
	return "fa-moon"
}

// BodyClass is the class added to <body> for the light scheme.
func (t Theme) BodyClass() string {
	if t == Light {
		return "light-theme"
	}
	return ""
}

func (t Theme) String() string { return string(t) }

// FromRequest reads the theme cookie, falling back to Default.
func FromRequest(r *http.Request) Theme {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Default
	}
	return OrDefault(c.Value)
}

// Persist writes the theme cookie. It is not HttpOnly so the page script can
// apply the scheme before first paint.
func Persist(w http.ResponseWriter, t Theme) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    string(t),
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
		HttpOnly: false,
	})
}
