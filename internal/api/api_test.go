package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joestump/joe-contact/internal/api"
	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/theme"
	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
)

type testEnv struct {
	Router   http.Handler
	Sessions *scs.SessionManager
}

// newTestEnv wires the API router behind an in-memory session manager.
func newTestEnv(t *testing.T, origins ...string) *testEnv {
	t.Helper()
	sm := scs.New()
	r := api.NewRouter(api.Deps{
		Sessions:       sm,
		Rules:          validate.NewRuleSet(validate.Options{}),
		Policy:         upload.NewPolicy(nil, 0),
		SubmitDelay:    500 * time.Millisecond,
		BannerDuration: 4 * time.Second,
		AllowedOrigins: origins,
	})
	return &testEnv{Router: sm.LoadAndSave(r), Sessions: sm}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func TestSetTheme(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/set-theme", `{"theme":"light"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	var got *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == theme.CookieName {
			got = c
		}
	}
	require.NotNil(t, got, "theme cookie not set")
	assert.Equal(t, "light", got.Value)
	assert.False(t, got.HttpOnly)
}

func TestSetTheme_StoredInSession(t *testing.T) {
	sm := scs.New()
	inner := api.NewRouter(api.Deps{
		Sessions: sm,
		Rules:    validate.NewRuleSet(validate.Options{}),
		Policy:   upload.NewPolicy(nil, 0),
	})
	var seen string
	h := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner.ServeHTTP(w, r)
		seen = sm.GetString(r.Context(), auth.SessionThemeKey)
	}))

	req := httptest.NewRequest(http.MethodPost, "/set-theme", strings.NewReader(`{"theme":"dark"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "dark", seen)
}

func TestSetTheme_Invalid(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "unknown theme", body: `{"theme":"sepia"}`, code: "INVALID_THEME"},
		{name: "wrong case", body: `{"theme":"Dark"}`, code: "INVALID_THEME"},
		{name: "missing theme", body: `{}`, code: "VALIDATION_ERROR"},
		{name: "not json", body: `theme=light`, code: "BAD_REQUEST"},
		{name: "extra field", body: `{"theme":"light","x":1}`, code: "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/set-theme", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeBody(t, w)["code"])
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestValidateField(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name    string
		body    string
		valid   bool
		message string
	}{
		{name: "short name", body: `{"field":"name","value":"J"}`, message: "Name must be at least 2 characters"},
		{name: "good name", body: `{"field":"name","value":"Jo"}`, valid: true},
		{name: "empty email", body: `{"field":"email","value":"  "}`, message: "Email is required"},
		{name: "bad email", body: `{"field":"email","value":"a@b"}`, message: "Please enter a valid email address"},
		{name: "good email", body: `{"field":"email","value":"a@b.co"}`, valid: true},
		{name: "message with angle bracket", body: `{"field":"message","value":"if a<b and c then"}`, valid: true},
		{name: "message with comparison", body: `{"field":"message","value":"Rate is 3<x hours, ok please call"}`, valid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/validate", tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.valid, body["valid"])
			if tt.valid {
				assert.Empty(t, body["message"])
			} else {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestValidateField_UnknownField(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/validate", `{"field":"phone","value":"555"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_FIELD", decodeBody(t, w)["code"])
}

func TestCheckFile(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name    string
		body    string
		valid   bool
		message string
		display string
	}{
		{name: "pdf", body: `{"name":"report.pdf","size":2048}`, valid: true, display: "(2.00 KB)"},
		{name: "exe", body: `{"name":"setup.exe","size":10}`, message: "File type .exe not allowed"},
		{name: "exact ceiling", body: `{"name":"big.zip","size":16777216}`, valid: true, display: "(16384.00 KB)"},
		{name: "one byte over", body: `{"name":"big.zip","size":16777217}`, message: "File size exceeds 16MB limit"},
		{name: "empty file", body: `{"name":"empty.txt","size":0}`, valid: true, display: "(0.00 KB)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/check-file", tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.valid, body["valid"])
			if tt.valid {
				assert.Equal(t, tt.display, body["display"])
			} else {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestCheckFile_BadRequest(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{`{"name":"a.txt"}`, `{"size":1}`, `{"name":"a.txt","size":-1}`} {
		w := env.do(t, http.MethodPost, "/check-file", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestLimits(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/limits", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got api.LimitsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(16<<20), got.MaxBytes)
	assert.Equal(t, "16MB", got.MaxLabel)
	assert.Equal(t, 500, got.MessageMax)
	assert.Equal(t, "email", got.ContactField)
	assert.Equal(t, int64(500), got.SubmitDelayMS)
	assert.Equal(t, int64(4000), got.BannerDurationMS)
	assert.Contains(t, got.Extensions, "docx")
	assert.True(t, strings.HasPrefix(got.Accept, ".txt,"))
}

func TestNotFoundIsJSON(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, w)["code"])
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, "https://site.example")

	req := httptest.NewRequest(http.MethodOptions, "/set-theme", nil)
	req.Header.Set("Origin", "https://site.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	assert.Equal(t, "https://site.example", w.Header().Get("Access-Control-Allow-Origin"))
}
