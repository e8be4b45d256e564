package domain

// Match is one candidate occurrence of a symbol template on a page.
type Match struct {
	ID          string      `json:"id"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"boundingBox"`
	PageNumber  int         `json:"pageNumber"`
	DocumentID  string      `json:"documentId"`
}

// SymbolTemplate is a cropped reference image of the symbol being searched
// for. Immutable once extracted; Image holds the PNG-encoded crop.
type SymbolTemplate struct {
	ID                string      `json:"id"`
	Image             []byte      `json:"-"`
	OriginDocumentID  string      `json:"originDocumentId"`
	OriginPageNumber  int         `json:"originPageNumber"`
	OriginBoundingBox BoundingBox `json:"originBoundingBox"`
	Description       string      `json:"description,omitempty"`
}

// CountMeasurement is one persisted count, one-to-one with a surviving
// match. CalculatedValue is always 1: each detected symbol counts as one
// unit of whatever the condition measures.
type CountMeasurement struct {
	ID                string      `json:"id"`
	ProjectID         string      `json:"projectId"`
	DocumentID        string      `json:"documentId"`
	ConditionID       string      `json:"conditionId"`
	PageNumber        int         `json:"pageNumber"`
	CenterPoint       Point       `json:"centerPoint"`
	SourceBoundingBox BoundingBox `json:"sourceBoundingBox"`
	CalculatedValue   float64     `json:"calculatedValue"`
}

// Thumbnail is a small rendered crop around one measurement for UI review.
type Thumbnail struct {
	MeasurementID string `json:"measurementId"`
	DocumentID    string `json:"documentId"`
	PageNumber    int    `json:"pageNumber"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ImageBase64   string `json:"imageBase64"`
	MimeType      string `json:"mimeType"`
}
