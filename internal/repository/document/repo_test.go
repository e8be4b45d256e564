package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

type fakeStore struct {
	data map[string][]byte
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

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.data[key] = value
	return nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestUpsertGet(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	doc := domain.Document{
		ID: "doc-1", ProjectID: "proj-1", Name: "E-101.pdf",
		ContentType: "application/pdf", PageCount: 12,
	}
	if err := repo.Upsert(ctx, &doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != doc {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, doc)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newFakeStore())

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestListByProject_SortedAndScoped(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	for _, doc := range []domain.Document{
		{ID: "b", ProjectID: "p1", Name: "M-201.pdf", ContentType: "application/pdf"},
		{ID: "a", ProjectID: "p1", Name: "E-101.pdf", ContentType: "application/pdf"},
		{ID: "c", ProjectID: "p2", Name: "A-001.pdf", ContentType: "application/pdf"},
	} {
		d := doc
		if err := repo.Upsert(ctx, &d); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	docs, err := repo.ListByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents for p1, got %d", len(docs))
	}
	if docs[0].Name != "E-101.pdf" || docs[1].Name != "M-201.pdf" {
		t.Errorf("not sorted by name: %s, %s", docs[0].Name, docs[1].Name)
	}
}

func TestDelete_RemovesBothKeys(t *testing.T) {
	store := newFakeStore()
	repo := New(store)
	ctx := context.Background()

	doc := domain.Document{ID: "doc-1", ProjectID: "p1", Name: "x.pdf"}
	if err := repo.Upsert(ctx, &doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.data) != 0 {
		t.Errorf("expected empty store, %d keys remain", len(store.data))
	}
}
