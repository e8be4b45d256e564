package template

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

type fakeStore struct {
	data    map[string][]byte
	lastTTL time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	f.lastTTL = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func TestSaveGet_RoundTrip(t *testing.T) {
	store := newFakeStore()
	repo := New(store, time.Hour)
	ctx := context.Background()

	tpl := domain.SymbolTemplate{
		ID:                "tpl-1",
		Image:             []byte{0x89, 0x50, 0x4e, 0x47},
		OriginDocumentID:  "doc-1",
		OriginPageNumber:  3,
		OriginBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.2, Width: 0.05, Height: 0.04},
		Description:       "duplex outlet",
	}
	if err := repo.Save(ctx, &tpl); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.lastTTL != time.Hour {
		t.Errorf("ttl not applied: got %v", store.lastTTL)
	}

	got, err := repo.Get(ctx, "tpl-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got.Image, tpl.Image) {
		t.Error("image bytes did not survive the round trip")
	}
	// The origin box must be stored exactly, never recomputed from the crop.
	if got.OriginBoundingBox != tpl.OriginBoundingBox {
		t.Errorf("origin box drifted: got %+v", got.OriginBoundingBox)
	}
	if got.OriginPageNumber != 3 || got.Description != "duplex outlet" {
		t.Errorf("metadata drifted: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newFakeStore(), time.Hour)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := newFakeStore()
	repo := New(store, time.Hour)
	ctx := context.Background()

	tpl := domain.SymbolTemplate{ID: "tpl-1", Image: []byte{1}}
	if err := repo.Save(ctx, &tpl); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Delete(ctx, "tpl-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "tpl-1"); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("template still present after delete: %v", err)
	}
}
