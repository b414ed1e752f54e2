package api

// SetThemeRequest is the body of POST /api/set-theme.
type SetThemeRequest struct {
	Theme string `json:"theme" validate:"required"`
}

// ValidateRequest is the body of POST /api/validate. Value may be empty.
type ValidateRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

// CheckFileRequest is the body of POST /api/check-file.
type CheckFileRequest struct {
	Name string `json:"name" validate:"required"`
	Size *int64 `json:"size" validate:"required,gte=0"`
}

// LimitsResponse is what the page script needs to mirror server-side rules.
type LimitsResponse struct {
	Extensions       []string `json:"extensions"`
	Accept           string   `json:"accept"`
	MaxBytes         int64    `json:"max_bytes"`
	MaxLabel         string   `json:"max_label"`
	MessageMax       int      `json:"message_max"`
	ContactField     string   `json:"contact_field"`
	SubmitDelayMS    int64    `json:"submit_delay_ms"`
	BannerDurationMS int64    `json:"banner_duration_ms"`
}
