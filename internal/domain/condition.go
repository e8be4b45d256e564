package domain

// Condition is one line-item being measured (e.g. "Electrical Outlets").
// It owns zero or more count measurements produced by exactly one
// completed search run.
type Condition struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Unit      string `json:"unit"`

	// Last completed search run, persisted for UI display.
	SearchScope string `json:"searchScope,omitempty"`
	TemplateID  string `json:"templateId,omitempty"`
}

// Document is one file of a project drawing set.
type Document struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	PageCount   int    `json:"pageCount,omitempty"`
}

// IsRasterizable reports whether the document can be rendered page by page.
// Project-scope searches silently skip everything else.
func (d Document) IsRasterizable() bool {
	return d.ContentType == "application/pdf"
}
