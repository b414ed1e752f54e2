package handler

import (
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/metrics"
	"github.com/joestump/joe-contact/internal/theme"
)

// ThemeHandler serves the no-script theme toggle.
type ThemeHandler struct {
	sessions *scs.SessionManager
}

// NewThemeHandler creates a new ThemeHandler.
func NewThemeHandler(sm *scs.SessionManager) *ThemeHandler {
	return &ThemeHandler{sessions: sm}
}

// Toggle handles POST /theme/toggle: flips the stored preference and sends
// the browser back to the page it came from.
func (h *ThemeHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	next := theme.FromRequest(r).Toggle()
	theme.Persist(w, next)
	h.sessions.Put(r.Context(), auth.SessionThemeKey, next.String())
	metrics.ThemeChangesTotal.WithLabelValues(next.String()).Inc()

	http.Redirect(w, r, localPath(r.FormValue("return")), http.StatusSeeOther)
}

// localPath returns target if it is a path on this site, otherwise "/".
func localPath(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
