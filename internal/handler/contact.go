package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/httplog/v2"

	"github.com/joestump/joe-contact/internal/metrics"
	"github.com/joestump/joe-contact/internal/store"
	"github.com/joestump/joe-contact/internal/upload"
	"github.com/joestump/joe-contact/internal/validate"
)

// FieldFile is the multipart part name of the optional attachment.
const FieldFile = "file"

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// ContactHandler serves the contact form and accepts submissions.
type ContactHandler struct {
	sessions *scs.SessionManager
	messages *store.MessageStore
	files    *upload.Store
	rules    *validate.RuleSet

	submitDelay    time.Duration
	bannerDuration time.Duration
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(sm *scs.SessionManager, ms *store.MessageStore, fs *upload.Store, rules *validate.RuleSet, submitDelay, bannerDuration time.Duration) *ContactHandler {
	return &ContactHandler{
		sessions:       sm,
		messages:       ms,
		files:          fs,
		rules:          rules,
		submitDelay:    submitDelay,
		bannerDuration: bannerDuration,
	}
}

// ContactPage is the template data for the contact form.
type ContactPage struct {
	BasePage
	Values map[string]string
	Errors validate.Errors

	ContactField string
	ContactLabel string
	ContactType  string // "email" or "text"

	MessageMax int
	MessageLen int
	Accept     string
	MaxBytes   int64
	MaxLabel   string

	SubmitDelayMS    int64
	BannerDurationMS int64
	Sent             bool
}

func (h *ContactHandler) page(r *http.Request) ContactPage {
	field := h.rules.Mode.Field()
	p := ContactPage{
		BasePage:         newBasePage(r, h.sessions),
		Values:           map[string]string{},
		Errors:           validate.Errors{},
		ContactField:     field,
		ContactLabel:     h.rules.Rules[field].Label,
		ContactType:      "text",
		MessageMax:       h.rules.Rules[validate.FieldMessage].MaxLength,
		Accept:           h.files.Policy().Accept(),
		MaxBytes:         h.files.Policy().MaxBytes,
		MaxLabel:         h.files.Policy().MaxLabel(),
		SubmitDelayMS:    h.submitDelay.Milliseconds(),
		BannerDurationMS: h.bannerDuration.Milliseconds(),
	}
	if h.rules.Mode == validate.ContactEmail {
		p.ContactType = "email"
	}
	return p
}

// Show serves GET /.
func (h *ContactHandler) Show(w http.ResponseWriter, r *http.Request) {
	p := h.page(r)
	p.Sent = r.URL.Query().Get("sent") == "true"
	render(w, "index.html", p)
}

// Submit handles POST /. Invalid input re-renders the form with 422 and
// never touches the store. A stored message redirects to /?sent=true.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	policy := h.files.Policy()
	p := h.page(r)

	// Leave headroom for the text fields and multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, policy.MaxBytes+1<<20)
	if err := parseForm(r); err != nil {
		var tooBig *http.MaxBytesError
		if !errors.As(err, &tooBig) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// The form was never parsed, so the text fields come back empty.
		p.Errors[FieldFile] = policy.TooLarge()
		h.reject(w, r, p, "rejected_file")
		return
	}

	// Text is stored as typed; templates escape it on output.
	for _, name := range h.rules.Order {
		p.Values[name] = strings.TrimSpace(r.PostFormValue(name))
	}
	p.Values[validate.FieldMessage], p.MessageLen = h.rules.Truncate(validate.FieldMessage, p.Values[validate.FieldMessage])
	for name, msg := range h.rules.ValidateAll(p.Values) {
		p.Errors[name] = msg
	}

	file, header, err := r.FormFile(FieldFile)
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no attachment
	case err != nil:
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	default:
		f := file
		defer func() { _ = f.Close() }()
		if header.Filename == "" {
			file = nil
			break
		}
		if d := policy.Check(header.Filename, header.Size); !d.Valid {
			p.Errors[FieldFile] = d.Message
		}
	}

	if !p.Errors.Valid() {
		outcome := "invalid"
		if _, bad := p.Errors[FieldFile]; bad {
			outcome = "rejected_file"
		}
		h.reject(w, r, p, outcome)
		return
	}

	in := store.NewMessage{
		Name:        p.Values[validate.FieldName],
		Contact:     p.Values[p.ContactField],
		ContactKind: string(h.rules.Mode),
		Body:        p.Values[validate.FieldMessage],
		Theme:       p.Theme.String(),
	}
	if file != nil {
		att, err := h.saveFile(file, header)
		if errors.Is(err, upload.ErrRejected) {
			p.Errors[FieldFile] = policy.TooLarge()
			h.reject(w, r, p, "rejected_file")
			return
		}
		if err != nil {
			logger.Error("save attachment", httplog.ErrAttr(err))
			metrics.SubmissionsTotal.WithLabelValues("error").Inc()
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		in.Attachment = att
	}

	msg, err := h.messages.Create(r.Context(), in)
	if err != nil {
		if in.Attachment != nil {
			_ = h.files.Remove(in.Attachment.StoredName)
		}
		logger.Error("store message", httplog.ErrAttr(err))
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("message stored", "message_id", msg.ID, "attachment", in.Attachment != nil)
	metrics.SubmissionsTotal.WithLabelValues("stored").Inc()
	metrics.MessagesTotal.Inc()
	http.Redirect(w, r, "/?sent=true", http.StatusSeeOther)
}

func (h *ContactHandler) saveFile(file multipart.File, header *multipart.FileHeader) (*store.NewAttachment, error) {
	saved, err := h.files.Save(header.Filename, header.Size, file)
	if err != nil {
		return nil, err
	}
	return &store.NewAttachment{
		FileName:    displayName(header.Filename),
		StoredName:  saved.StoredName,
		ContentType: saved.ContentType,
		SizeBytes:   saved.SizeBytes,
	}, nil
}

// displayName keeps the last path element of a client file name. Some
// browsers send the full local path.
func displayName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}

// reject re-renders the form with inline errors. The file selection is not
// carried over.
func (h *ContactHandler) reject(w http.ResponseWriter, r *http.Request, p ContactPage, outcome string) {
	for field := range p.Errors {
		metrics.ValidationFailuresTotal.WithLabelValues(field).Inc()
	}
	metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	httplog.LogEntry(r.Context()).Debug("submission rejected", "fields", len(p.Errors), "outcome", outcome)
	renderStatus(w, http.StatusUnprocessableEntity, "index.html", p)
}

func parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return r.ParseForm()
		}
		return err
	}
	return nil
}
