package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// store is the consumer interface for documents (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists document (drawing set file) records.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Upsert creates or updates a document record.
func (r *Repo) Upsert(ctx context.Context, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	key := docKey(doc.ProjectID, doc.ID)
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	// Secondary key for project-independent lookup.
	if err := r.store.Set(ctx, docRefKey(doc.ID), []byte(key)); err != nil {
		return fmt.Errorf("set %s: %w", docRefKey(doc.ID), err)
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.Document, error) {
	ref, err := r.store.Get(ctx, docRefKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("get %s: %w", docRefKey(id), err)
	}

	raw, err := r.store.Get(ctx, string(ref))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Document{}, domain.ErrDocumentNotFound
		}
		return domain.Document{}, fmt.Errorf("get %s: %w", ref, err)
	}

	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Document{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return doc, nil
}

// ListByProject returns every document of a project, ordered by name for
// deterministic unit enumeration.
func (r *Repo) ListByProject(ctx context.Context, projectID string) ([]domain.Document, error) {
	pattern := fmt.Sprintf("%sdoc:%s:*", domain.KeyPrefix, projectID)
	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}

	docs := make([]domain.Document, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				continue // deleted between scan and get
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var doc domain.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document %s: %w", key, err)
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Delete removes a document record.
func (r *Repo) Delete(ctx context.Context, id string) error {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Del(ctx, docKey(doc.ProjectID, id)); err != nil {
		return fmt.Errorf("del %s: %w", docKey(doc.ProjectID, id), err)
	}
	if err := r.store.Del(ctx, docRefKey(id)); err != nil {
		return fmt.Errorf("del %s: %w", docRefKey(id), err)
	}
	return nil
}

func docKey(projectID, id string) string {
	return fmt.Sprintf("%sdoc:%s:%s", domain.KeyPrefix, projectID, id)
}

func docRefKey(id string) string {
	return fmt.Sprintf("%sdocref:%s", domain.KeyPrefix, id)
}
