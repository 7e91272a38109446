package textile

// Result holds the output of a conversion.
type Result struct {
	Markdown   string    `json:"markdown"`
	Unresolved []string  `json:"unresolved,omitempty"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// WarningType categorizes conversion warnings.
type WarningType string

const (
	WarningUnresolvedAttachment WarningType = "unresolved_attachment"
	WarningNestingDepth         WarningType = "nesting_depth"
)

// Warning represents a non-fatal issue encountered during conversion.
type Warning struct {
	Type    WarningType `json:"type"`
	Subject string      `json:"subject,omitempty"`
	Message string      `json:"message"`
}
