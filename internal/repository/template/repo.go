package template

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// store is the consumer interface for transient templates (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// dto is the storage form of a template; the crop travels base64-encoded
// inside the JSON value.
type dto struct {
	ID                string             `json:"id"`
	ImageBase64       string             `json:"imageBase64"`
	OriginDocumentID  string             `json:"originDocumentId"`
	OriginPageNumber  int                `json:"originPageNumber"`
	OriginBoundingBox domain.BoundingBox `json:"originBoundingBox"`
	Description       string             `json:"description,omitempty"`
}

// Repo holds symbol templates in transient storage. Templates are scoped
// to one run: Save applies a TTL so orphans expire even when cleanup
// never runs.
type Repo struct {
	store store
	ttl   time.Duration
}

// New creates a template repository with the given transient TTL.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl}
}

// Save persists a template with the configured TTL.
func (r *Repo) Save(ctx context.Context, tpl *domain.SymbolTemplate) error {
	data, err := json.Marshal(dto{
		ID:                tpl.ID,
		ImageBase64:       base64.StdEncoding.EncodeToString(tpl.Image),
		OriginDocumentID:  tpl.OriginDocumentID,
		OriginPageNumber:  tpl.OriginPageNumber,
		OriginBoundingBox: tpl.OriginBoundingBox,
		Description:       tpl.Description,
	})
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	key := tplKey(tpl.ID)
	if err := r.store.SetWithTTL(ctx, key, data, r.ttl); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns a template by ID, including its decoded crop bytes.
func (r *Repo) Get(ctx context.Context, id string) (domain.SymbolTemplate, error) {
	key := tplKey(id)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.SymbolTemplate{}, domain.ErrTemplateNotFound
		}
		return domain.SymbolTemplate{}, fmt.Errorf("get %s: %w", key, err)
	}

	var d dto
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("unmarshal template %s: %w", id, err)
	}
	img, err := base64.StdEncoding.DecodeString(d.ImageBase64)
	if err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("decode template image %s: %w", id, err)
	}

	return domain.SymbolTemplate{
		ID:                d.ID,
		Image:             img,
		OriginDocumentID:  d.OriginDocumentID,
		OriginPageNumber:  d.OriginPageNumber,
		OriginBoundingBox: d.OriginBoundingBox,
		Description:       d.Description,
	}, nil
}

// Delete removes a template once the run using it reaches a terminal state.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := tplKey(id)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func tplKey(id string) string {
	return fmt.Sprintf("%stpl:%s", domain.KeyPrefix, id)
}
