// Package validate checks contact-form fields against a per-field rule set.
// It has no HTTP or storage dependency: callers pass the raw text in and get a
// Result back, then decide where to display it.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrUnknownField is returned by Lookup when no rule is configured for a field.
var ErrUnknownField = errors.New("unknown field")

// Field names used by the contact form.
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldContact = "contact"
	FieldMessage = "message"
)

// ContactMode selects which reply-address field the form carries.
type ContactMode string

const (
	// ContactEmail requires an email address shaped like local@domain.tld.
	ContactEmail ContactMode = "email"
	// ContactGeneric accepts any reply handle of at least three characters.
	ContactGeneric ContactMode = "contact"
)

// ParseContactMode returns the mode named by s, or an error.
func ParseContactMode(s string) (ContactMode, error) {
	switch ContactMode(strings.ToLower(strings.TrimSpace(s))) {
	case ContactEmail, "":
		return ContactEmail, nil
	case ContactGeneric:
		return ContactGeneric, nil
	default:
		return "", fmt.Errorf("contact mode must be %q or %q, got %q", ContactEmail, ContactGeneric, s)
	}
}

// Field returns the form field name for the mode.
func (m ContactMode) Field() string {
	if m == ContactGeneric {
		return FieldContact
	}
	return FieldEmail
}

var (
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Rule is the set of checks applied to a single field. Zero values disable a
// check: MinLength 0 means no minimum, MaxLength 0 means no maximum.
type Rule struct {
	Label          string
	Required       bool
	MinLength      int
	MaxLength      int
	Pattern        *regexp.Regexp
	PatternMessage string
}

// FormField is a snapshot of one input as typed by the user.
type FormField struct {
	Name    string
	Raw     string
	Trimmed string
}

// NewFormField builds a FormField, trimming surrounding whitespace.
func NewFormField(name, raw string) FormField {
	return FormField{Name: name, Raw: raw, Trimmed: strings.TrimSpace(raw)}
}

// Result is the outcome of validating a field. Message is empty when Valid.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// OK is the passing result.
var OK = Result{Valid: true}

func fail(msg string) Result { return Result{Message: msg} }

// Check applies r to value. value should already be trimmed.
func (r Rule) Check(value string) Result {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		if r.Required {
			return fail(r.Label + " is required")
		}
		return OK
	}
	if r.MinLength > 0 && n < r.MinLength {
		return fail(fmt.Sprintf("%s must be at least %d characters", r.Label, r.MinLength))
	}
	if r.Pattern != nil && !r.Pattern.MatchString(value) {
		return fail(r.PatternMessage)
	}
	if r.MaxLength > 0 && n > r.MaxLength {
		return fail(fmt.Sprintf("%s cannot exceed %d characters", r.Label, r.MaxLength))
	}
	return OK
}

// RuleSet maps field names to their rules. Order lists the fields in the
// order they appear on the form.
type RuleSet struct {
	Mode  ContactMode
	Order []string
	Rules map[string]Rule
}

// Options tweaks the canonical rule set.
type Options struct {
	Mode ContactMode
	// LooseName drops the letters-only pattern on the name field.
	LooseName bool
	// MessageMax overrides the 500 character message ceiling when > 0.
	MessageMax int
}

// MessageMaxLength is the default message ceiling, also used by the character counter.
const MessageMaxLength = 500

// NewRuleSet returns the canonical contact-form rules.
func NewRuleSet(opts Options) *RuleSet {
	if opts.Mode == "" {
		opts.Mode = ContactEmail
	}
	msgMax := opts.MessageMax
	if msgMax <= 0 {
		msgMax = MessageMaxLength
	}

	name := Rule{Label: "Name", Required: true, MinLength: 2}
	if !opts.LooseName {
		name.Pattern = namePattern
		name.PatternMessage = "Name can only contain letters, spaces, hyphens, and apostrophes"
	}

	var reply Rule
	switch opts.Mode {
	case ContactGeneric:
		reply = Rule{Label: "Contact", Required: true, MinLength: 3}
	default:
		reply = Rule{
			Label:          "Email",
			Required:       true,
			Pattern:        emailPattern,
			PatternMessage: "Please enter a valid email address",
		}
	}

	return &RuleSet{
		Mode:  opts.Mode,
		Order: []string{FieldName, opts.Mode.Field(), FieldMessage},
		Rules: map[string]Rule{
			FieldName:         name,
			opts.Mode.Field(): reply,
			FieldMessage:      {Label: "Message", Required: true, MinLength: 10, MaxLength: msgMax},
		},
	}
}

// Lookup returns the rule for a field or ErrUnknownField.
func (s *RuleSet) Lookup(field string) (Rule, error) {
	r, ok := s.Rules[field]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return r, nil
}

// Validate checks a single field. Fields without a rule are valid.
func (s *RuleSet) Validate(f FormField) Result {
	r, ok := s.Rules[f.Name]
	if !ok {
		return OK
	}
	return r.Check(f.Trimmed)
}

// Check is shorthand for Validate(NewFormField(name, raw)).
func (s *RuleSet) Check(name, raw string) Result {
	return s.Validate(NewFormField(name, raw))
}

// Errors maps field names to failure messages. A nil or empty Errors means
// every field passed.
type Errors map[string]string

// Valid reports whether no field failed.
func (e Errors) Valid() bool { return len(e) == 0 }

// Get returns the message for a field, or "".
func (e Errors) Get(field string) string { return e[field] }

// ValidateAll runs every configured rule against values. Missing keys are
// treated as empty input.
func (s *RuleSet) ValidateAll(values map[string]string) Errors {
	errs := Errors{}
	for _, name := range s.Order {
		if res := s.Check(name, values[name]); !res.Valid {
			errs[name] = res.Message
		}
	}
	return errs
}

// Truncate hard-limits raw to the field's MaxLength runes and returns the
// kept text with its length for the character counter. Fields without a
// maximum are returned unchanged.
func (s *RuleSet) Truncate(field, raw string) (string, int) {
	r, ok := s.Rules[field]
	n := utf8.RuneCountInString(raw)
	if !ok || r.MaxLength <= 0 || n <= r.MaxLength {
		return raw, n
	}
	return string([]rune(raw)[:r.MaxLength]), r.MaxLength
}
