package api

import (
	"errors"
	"net/http"

	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/metrics"
	"github.com/joestump/joe-contact/internal/theme"
	"github.com/joestump/joe-contact/internal/validate"
)

// SetTheme handles POST /api/set-theme. The page has already switched the
// scheme locally, so the response carries no body.
func (h *handlers) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req SetThemeRequest
	if !h.validate.decode(w, r, &req) {
		return
	}
	t, err := theme.Parse(req.Theme)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_THEME")
		return
	}

	theme.Persist(w, t)
	if h.deps.Sessions != nil {
		h.deps.Sessions.Put(r.Context(), auth.SessionThemeKey, t.String())
	}
	metrics.ThemeChangesTotal.WithLabelValues(t.String()).Inc()
	w.WriteHeader(http.StatusNoContent)
}

// ValidateField handles POST /api/validate, used for validation on blur.
func (h *handlers) ValidateField(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.validate.decode(w, r, &req) {
		return
	}
	if _, err := h.deps.Rules.Lookup(req.Field); err != nil {
		if errors.Is(err, validate.ErrUnknownField) {
			writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_FIELD")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Rules.Check(req.Field, req.Value))
}

// CheckFile handles POST /api/check-file.
func (h *handlers) CheckFile(w http.ResponseWriter, r *http.Request) {
	var req CheckFileRequest
	if !h.validate.decode(w, r, &req) {
		return
	}
	d := h.deps.Policy.Check(req.Name, *req.Size)
	if d.Valid {
		metrics.FilesCheckedTotal.WithLabelValues("accepted").Inc()
	} else {
		metrics.FilesCheckedTotal.WithLabelValues("rejected").Inc()
	}
	writeJSON(w, http.StatusOK, d)
}

// Limits handles GET /api/limits.
func (h *handlers) Limits(w http.ResponseWriter, r *http.Request) {
	p := h.deps.Policy
	rules := h.deps.Rules
	writeJSON(w, http.StatusOK, LimitsResponse{
		Extensions:       p.Extensions(),
		Accept:           p.Accept(),
		MaxBytes:         p.MaxBytes,
		MaxLabel:         p.MaxLabel(),
		MessageMax:       rules.Rules[validate.FieldMessage].MaxLength,
		ContactField:     rules.Mode.Field(),
		SubmitDelayMS:    h.deps.SubmitDelay.Milliseconds(),
		BannerDurationMS: h.deps.BannerDuration.Milliseconds(),
	})
}
