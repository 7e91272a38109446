package redmine

import "time"

// Named is the {id, name} reference envelope the Redmine API uses for
// projects, users, statuses and similar associations.
type Named struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Project describes a Redmine project.
type Project struct {
	ID          int    `json:"id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Attachment describes a file uploaded to an issue or wiki page.
type Attachment struct {
	ID          int    `json:"id"`
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	ContentType string `json:"content_type"`
	ContentURL  string `json:"content_url"`
	Description string `json:"description"`
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return len(a.ContentType) > 6 && a.ContentType[:6] == "image/"
}

// Journal is a comment or change entry on an issue.
type Journal struct {
	ID        int       `json:"id"`
	User      Named     `json:"user"`
	Notes     string    `json:"notes"`
	CreatedOn time.Time `json:"created_on"`
}

// CustomField is a user-defined issue field.
type CustomField struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Issue is a Redmine issue with its optional includes.
type Issue struct {
	ID             int           `json:"id"`
	Project        Named         `json:"project"`
	Tracker        Named         `json:"tracker"`
	Status         Named         `json:"status"`
	Priority       Named         `json:"priority"`
	Author         Named         `json:"author"`
	AssignedTo     *Named        `json:"assigned_to,omitempty"`
	FixedVersion   *Named        `json:"fixed_version,omitempty"`
	Parent         *Named        `json:"parent,omitempty"`
	Subject        string        `json:"subject"`
	Description    string        `json:"description"`
	DoneRatio      int           `json:"done_ratio"`
	EstimatedHours float64       `json:"estimated_hours"`
	SpentHours     float64       `json:"spent_hours"`
	CreatedOn      time.Time     `json:"created_on"`
	UpdatedOn      time.Time     `json:"updated_on"`
	CustomFields   []CustomField `json:"custom_fields,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Journals       []Journal     `json:"journals,omitempty"`
}

// WikiPage is a Redmine wiki page, with text present only on single-page
// fetches.
type WikiPage struct {
	Title  string `json:"title"`
	Parent *struct {
		Title string `json:"title"`
	} `json:"parent,omitempty"`
	Text        string       `json:"text"`
	Version     int          `json:"version"`
	Author      Named        `json:"author"`
	Comments    string       `json:"comments"`
	CreatedOn   time.Time    `json:"created_on"`
	UpdatedOn   time.Time    `json:"updated_on"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// IssuePage is one page of a paginated issue listing.
type IssuePage struct {
	Issues     []Issue `json:"issues"`
	TotalCount int     `json:"total_count"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}
