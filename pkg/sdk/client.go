package takeoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Client talks to a takeoff auto-count server over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateCondition registers a condition. A condition with an empty ID is
// assigned one by the server.
func (c *Client) CreateCondition(ctx context.Context, cond domain.Condition) (domain.Condition, error) {
	var out domain.Condition
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/conditions", cond, &out)
	return out, err
}

// GetCondition fetches a condition by ID.
func (c *Client) GetCondition(ctx context.Context, id string) (domain.Condition, error) {
	var out domain.Condition
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/conditions/"+id, nil, &out)
	return out, err
}

// UpdateCondition replaces a condition. The ID on cond is ignored in
// favor of the id argument.
func (c *Client) UpdateCondition(ctx context.Context, id string, cond domain.Condition) (domain.Condition, error) {
	var out domain.Condition
	err := c.doJSON(ctx, http.MethodPut, "/api/v1/conditions/"+id, cond, &out)
	return out, err
}

// DeleteCondition removes a condition along with its measurements.
func (c *Client) DeleteCondition(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/conditions/"+id, nil, nil)
}

// CreateDocument registers document metadata.
func (c *Client) CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error) {
	var out domain.Document
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/documents", doc, &out)
	return out, err
}

// UpdateDocument replaces a document's metadata.
func (c *Client) UpdateDocument(ctx context.Context, id string, doc domain.Document) (domain.Document, error) {
	var out domain.Document
	err := c.doJSON(ctx, http.MethodPut, "/api/v1/documents/"+id, doc, &out)
	return out, err
}

// ListDocuments lists a project's documents.
func (c *Client) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	var out struct {
		Items []domain.Document `json:"items"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects/"+projectID+"/documents", nil, &out)
	return out.Items, err
}

// Template is a symbol template with its PNG payload.
type Template struct {
	domain.SymbolTemplate
	ImageBase64 string `json:"imageBase64"`
}

// ExtractTemplate crops a symbol template out of a document page. The
// selection box is normalized to [0,1] page coordinates.
func (c *Client) ExtractTemplate(
	ctx context.Context, documentID string, pageNumber int, selection domain.BoundingBox,
) (Template, error) {
	body := map[string]any{
		"pageNumber":   pageNumber,
		"selectionBox": selection,
	}
	var out Template
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/documents/"+documentID+"/template", body, &out)
	return out, err
}

// MeasurementList is the measurement retrieval payload.
type MeasurementList struct {
	Items      []domain.CountMeasurement `json:"items"`
	Count      int                       `json:"count"`
	TotalValue float64                   `json:"totalValue"`
}

// Measurements fetches a condition's persisted measurements.
func (c *Client) Measurements(ctx context.Context, conditionID string) (MeasurementList, error) {
	var out MeasurementList
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/conditions/"+conditionID+"/measurements", nil, &out)
	return out, err
}

// Thumbnails fetches review thumbnails for a condition's measurements.
func (c *Client) Thumbnails(ctx context.Context, conditionID string) ([]domain.Thumbnail, error) {
	var out struct {
		Items []domain.Thumbnail `json:"items"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/conditions/"+conditionID+"/thumbnails", nil, &out)
	return out.Items, err
}

// Health reports server health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("takeoff: marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("takeoff: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("takeoff: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("takeoff: decode response: %w", err)
	}
	return nil
}
