package handler_test

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/spf13/afero"

	"github.com/joestump/joe-contact/internal/api"
	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/handler"
	mw "github.com/joestump/joe-contact/internal/middleware"
	"github.com/joestump/joe-contact/internal/store"
	"github.com/joestump/joe-contact/internal/testutil"
	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
)

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	messages *store.MessageStore
	admins   *store.AdminStore
	fs       afero.Fs
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	sm := scs.New()
	admins := store.NewAdminStore(db)
	messages := store.NewMessageStore(db)
	fs := afero.NewMemMapFs()
	files := upload.NewStoreFs(fs, upload.NewPolicy(nil, 0))
	rules := validate.NewRuleSet(validate.Options{})

	router := handler.NewRouter(handler.Deps{
		DB:             db,
		SessionManager: sm,
		AuthHandlers:   auth.NewHandlers(nil, sm, admins, "", false),
		AuthMiddleware: auth.NewMiddleware(sm, admins),
		MessageStore:   messages,
		FileStore:      files,
		Rules:          rules,
		Limiter:        mw.NewIPLimiter(6000, 1000),
		API: api.NewRouter(api.Deps{
			Sessions: sm,
			Rules:    rules,
			Policy:   files.Policy(),
		}),
		SubmitDelay:    500 * time.Millisecond,
		BannerDuration: 4 * time.Second,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{server: srv, client: client, messages: messages, admins: admins, fs: fs, handler: router}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (e *testEnv) postJSON(t *testing.T, path, body string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (e *testEnv) postMultipart(t *testing.T, fields map[string]string, fileName string, content []byte) (*http.Response, string) {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mpw.WriteField(k, v)
	}
	if fileName != "" {
		fw, err := mpw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write(content)
	}
	_ = mpw.Close()

	resp, err := e.client.Post(e.server.URL+"/", mpw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /: %v", err)
	}
	return resp, readBody(t, resp)
}

func (e *testEnv) count(t *testing.T) int64 {
	t.Helper()
	n, err := e.messages.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	hash, err := auth.HashPassword("inbox-pass-1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := e.admins.CreateLocal(context.Background(), "owner", hash); err != nil {
		t.Fatalf("CreateLocal: %v", err)
	}
	resp, _ := e.postForm(t, "/login", url.Values{"username": {"owner"}, "password": {"inbox-pass-1"}, "redirect": {"/messages"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/messages" {
		t.Fatalf("login = %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func validForm() url.Values {
	return url.Values{
		"name":    {"Ada Lovelace"},
		"email":   {"ada@example.com"},
		"message": {"Hello, I would like to talk."},
	}
}

func TestContactPage(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / = %d", resp.StatusCode)
	}
	for _, want := range []string{`id="contactForm"`, `name="email"`, `data-submit-delay="500"`, `maxlength="500"`, "fa-moon"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "success-banner show") {
		t.Error("banner shown without sent=true")
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}

	_, body = env.get(t, "/?sent=true")
	if !strings.Contains(body, "success-banner show") {
		t.Error("banner hidden with sent=true")
	}
}

func TestContactPage_LightThemeCookie(t *testing.T) {
	env := newTestEnv(t)
	u, _ := url.Parse(env.server.URL)
	env.client.Jar.SetCookies(u, []*http.Cookie{{Name: "theme", Value: "light"}})

	_, body := env.get(t, "/")
	if !strings.Contains(body, `class="light-theme"`) || !strings.Contains(body, "fa-sun") {
		t.Error("light theme cookie not reflected in page")
	}
}

func TestSubmit_Valid(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/", validForm())
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("POST / = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/?sent=true" {
		t.Errorf("Location = %q", loc)
	}
	if n := env.count(t); n != 1 {
		t.Errorf("stored messages = %d, want 1", n)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		patch url.Values
		want  string
	}{
		{name: "short name", patch: url.Values{"name": {"A"}}, want: "Name must be at least 2 characters"},
		{name: "digits in name", patch: url.Values{"name": {"R2D2"}}, want: "Name can only contain letters, spaces, hyphens, and apostrophes"},
		{name: "bad email", patch: url.Values{"email": {"ada@example"}}, want: "Please enter a valid email address"},
		{name: "short message", patch: url.Values{"message": {"Hi there"}}, want: "Message must be at least 10 characters"},
		{name: "blank message", patch: url.Values{"message": {"   "}}, want: "Message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			form := validForm()
			for k, v := range tt.patch {
				form[k] = v
			}
			resp, body := env.postForm(t, "/", form)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("POST / = %d, want 422", resp.StatusCode)
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
			if n := env.count(t); n != 0 {
				t.Errorf("invalid submission stored %d messages", n)
			}
		})
	}
}

func TestSubmit_StoresTextAsTyped(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	tests := []struct {
		name    string
		message string
	}{
		{name: "angle bracket", message: "if a<b and c then"},
		{name: "comparison", message: "Rate is 3<x hours, ok please call"},
		{name: "markup", message: "<b>Hello</b> & goodbye"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.postJSON(t, "/api/validate", `{"field":"message","value":"`+tt.message+`"}`)
			if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"valid":true`) {
				t.Fatalf("/api/validate = %d %s", resp.StatusCode, body)
			}

			form := validForm()
			form.Set("message", "  "+tt.message+"\n")
			resp, _ = env.postForm(t, "/", form)
			if resp.StatusCode != http.StatusSeeOther {
				t.Fatalf("POST / = %d", resp.StatusCode)
			}
			msgs, err := env.messages.List(context.Background(), 1, 0)
			if err != nil || len(msgs) != 1 {
				t.Fatalf("List = %v, %v", msgs, err)
			}
			if msgs[0].Body != tt.message {
				t.Errorf("stored %q, want %q", msgs[0].Body, tt.message)
			}

			_, inbox := env.get(t, "/messages")
			if !strings.Contains(inbox, template.HTMLEscapeString(tt.message)) {
				t.Errorf("inbox does not show escaped %q", tt.message)
			}
			if strings.Contains(tt.message, "<b>") && strings.Contains(inbox, "<b>Hello</b>") {
				t.Error("markup rendered unescaped in inbox")
			}
		})
	}
}

func TestSubmit_TruncatesMessage(t *testing.T) {
	env := newTestEnv(t)
	form := validForm()
	form.Set("message", "Hello there, "+strings.Repeat("x", 600))

	resp, _ := env.postForm(t, "/", form)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("POST / = %d", resp.StatusCode)
	}
	msgs, err := env.messages.List(context.Background(), 10, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("List = %v, %v", msgs, err)
	}
	body := msgs[0].Body
	if !strings.HasPrefix(body, "Hello there, ") {
		t.Errorf("body starts %q", body[:20])
	}
	if n := len([]rune(body)); n != 500 {
		t.Errorf("stored %d characters, want 500", n)
	}
}

func TestSubmit_BodyOverCeiling(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	for k, v := range validForm() {
		_ = mpw.WriteField(k, v[0])
	}
	fw, err := mpw.CreateFormFile("file", "archive.zip")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(bytes.Repeat([]byte{0}, 18<<20))
	_ = mpw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("POST / = %d, want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), "File size exceeds 16MB limit") {
		t.Error("size error not rendered")
	}
	if n := env.count(t); n != 0 {
		t.Errorf("stored %d messages, want 0", n)
	}
}

func TestSubmit_Attachment(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]string{"name": "Ada Lovelace", "email": "ada@example.com", "message": "Please see the attached notes."}

	resp, _ := env.postMultipart(t, fields, "notes.txt", []byte("some notes"))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("POST / with txt = %d", resp.StatusCode)
	}
	msgs, _ := env.messages.List(context.Background(), 10, 0)
	if len(msgs) != 1 || msgs[0].Attachment == nil {
		t.Fatalf("attachment not stored: %+v", msgs)
	}
	if msgs[0].Attachment.FileName != "notes.txt" || msgs[0].Attachment.SizeBytes != 10 {
		t.Errorf("attachment = %+v", msgs[0].Attachment)
	}
	if ok, _ := afero.Exists(env.fs, msgs[0].Attachment.StoredName); !ok {
		t.Error("attachment file not written")
	}
}

func TestSubmit_RejectedAttachment(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]string{"name": "Ada Lovelace", "email": "ada@example.com", "message": "Please see the attached program."}

	resp, body := env.postMultipart(t, fields, "setup.exe", []byte("MZ"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("POST / with exe = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(body, "File type .exe not allowed") {
		t.Error("missing file type message")
	}
	// Text fields survive the re-render.
	if !strings.Contains(body, `value="Ada Lovelace"`) {
		t.Error("name not carried over")
	}
	if n := env.count(t); n != 0 {
		t.Errorf("rejected submission stored %d messages", n)
	}
	entries, _ := afero.ReadDir(env.fs, "/")
	if len(entries) != 0 {
		t.Errorf("rejected upload left %d files", len(entries))
	}
}

func TestThemeToggle(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/theme/toggle", url.Values{"return": {"/login"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("toggle = %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	_, body := env.get(t, "/")
	if !strings.Contains(body, `class="light-theme"`) {
		t.Error("first toggle did not switch to light")
	}

	resp, _ = env.postForm(t, "/theme/toggle", url.Values{"return": {"https://evil.example"}})
	if resp.Header.Get("Location") != "/" {
		t.Errorf("off-site return honored: %q", resp.Header.Get("Location"))
	}
	_, body = env.get(t, "/")
	if strings.Contains(body, `class="light-theme"`) {
		t.Error("second toggle did not return to dark")
	}
}

func TestInbox_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get(t, "/messages")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("GET /messages = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login?redirect=%2Fmessages" {
		t.Errorf("Location = %q", loc)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.postForm(t, "/login", url.Values{"username": {"nobody"}, "password": {"whatever1"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("POST /login = %d, want 401", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid username or password") {
		t.Error("missing error message")
	}
}

func TestInbox_ListDownloadDelete(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]string{"name": "Grace Hopper", "email": "grace@example.com", "message": "Found a moth in the relay."}
	if resp, _ := env.postMultipart(t, fields, "moth.txt", []byte("bug report")); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("seed submission = %d", resp.StatusCode)
	}
	msgs, _ := env.messages.List(context.Background(), 1, 0)
	id := msgs[0].ID
	idStr := strconv.FormatInt(id, 10)

	env.signIn(t)

	resp, body := env.get(t, "/messages")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /messages = %d", resp.StatusCode)
	}
	for _, want := range []string{"Grace Hopper", "grace@example.com", "moth.txt", "10 B"} {
		if !strings.Contains(body, want) {
			t.Errorf("inbox missing %q", want)
		}
	}

	resp, body = env.get(t, "/messages/"+idStr+"/attachment")
	if resp.StatusCode != http.StatusOK || body != "bug report" {
		t.Fatalf("attachment = %d %q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "moth.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	resp, _ = env.postForm(t, "/messages/"+idStr+"/delete", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	if n := env.count(t); n != 0 {
		t.Errorf("messages after delete = %d", n)
	}
	_, body = env.get(t, "/messages")
	if !strings.Contains(body, "Message deleted") {
		t.Error("flash not shown after delete")
	}

	resp, _ = env.get(t, "/messages/"+idStr+"/attachment")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("attachment after delete = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.postForm(t, "/logout", nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Errorf("logout = %d -> %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = env.get(t, "/messages")
	if resp.StatusCode != http.StatusFound {
		t.Errorf("inbox after logout = %d, want 302", resp.StatusCode)
	}
}

func TestAPIMounted(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/api/limits")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"max_label":"16MB"`) {
		t.Errorf("GET /api/limits = %d %s", resp.StatusCode, body)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}
