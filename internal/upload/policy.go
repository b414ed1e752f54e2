// Package upload decides which attachments the contact form accepts and
// keeps the accepted ones on disk.
package upload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joestump/joe-contact/internal/validate"
)

// DefaultMaxBytes is the attachment ceiling: 16 MiB, inclusive.
const DefaultMaxBytes int64 = 16 << 20

// DefaultExtensions is the attachment allow-list.
var DefaultExtensions = []string{"txt", "pdf", "png", "jpg", "jpeg", "gif", "doc", "docx", "zip"}

// ErrRejected wraps every policy rejection returned as an error.
var ErrRejected = errors.New("file rejected")

// FileCandidate is a file the user picked, before it is accepted.
type FileCandidate struct {
	FileName  string
	Extension string
	SizeBytes int64
}

// NewFileCandidate derives the lower-cased extension from the text after the
// last '.'. A name without a dot yields the whole name, so "README" is
// checked as ".readme".
func NewFileCandidate(name string, size int64) FileCandidate {
	ext := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	return FileCandidate{FileName: name, Extension: strings.ToLower(ext), SizeBytes: size}
}

// Decision is the policy outcome for one candidate.
type Decision struct {
	validate.Result
	Candidate FileCandidate `json:"-"`
	// Display is the "(12.34 KB)" label shown next to an accepted file.
	Display string `json:"display,omitempty"`
}

// Err returns nil for an accepted file, or an error wrapping ErrRejected.
func (d Decision) Err() error {
	if d.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, d.Message)
}

// Policy is the extension allow-list plus size ceiling.
type Policy struct {
	allowed  map[string]bool
	exts     []string
	MaxBytes int64
}

// NewPolicy builds a Policy. Empty arguments fall back to the defaults.
func NewPolicy(exts []string, maxBytes int64) *Policy {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	p := &Policy{allowed: make(map[string]bool, len(exts)), MaxBytes: maxBytes}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e == "" || p.allowed[e] {
			continue
		}
		p.allowed[e] = true
		p.exts = append(p.exts, e)
	}
	return p
}

// Extensions returns the allow-list in configured order.
func (p *Policy) Extensions() []string {
	out := make([]string, len(p.exts))
	copy(out, p.exts)
	return out
}

// Accept is the "accept" attribute value for the file input, e.g. ".txt,.pdf".
func (p *Policy) Accept() string {
	parts := make([]string, len(p.exts))
	for i, e := range p.exts {
		parts[i] = "." + e
	}
	return strings.Join(parts, ",")
}

// MaxLabel renders the ceiling in whole megabytes, e.g. "16MB".
func (p *Policy) MaxLabel() string {
	return fmt.Sprintf("%dMB", p.MaxBytes>>20)
}

// TooLarge is the message for a file over the ceiling.
func (p *Policy) TooLarge() string {
	return fmt.Sprintf("File size exceeds %s limit", p.MaxLabel())
}

// Check applies the policy to a file name and size.
func (p *Policy) Check(name string, size int64) Decision {
	c := NewFileCandidate(name, size)
	d := Decision{Candidate: c}
	switch {
	case !p.allowed[c.Extension]:
		d.Message = fmt.Sprintf("File type .%s not allowed", c.Extension)
	case size > p.MaxBytes:
		d.Message = p.TooLarge()
	default:
		d.Result = validate.OK
		d.Display = FormatKB(size)
	}
	return d
}

// FormatKB renders a size as "(x.xx KB)".
func FormatKB(size int64) string {
	return fmt.Sprintf("(%.2f KB)", float64(size)/1024)
}
