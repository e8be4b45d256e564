package measurement

import (
	"context"
	"strings"
	"testing"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// fakeStore is an in-memory store implementing the repo's consumer interface.
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

func TestExistsForCondition(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	exists, err := repo.ExistsForCondition(ctx, "cond-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatal("fresh condition should have no measurements")
	}

	m := domain.CountMeasurement{ID: "m1", ConditionID: "cond-1", PageNumber: 1, CalculatedValue: 1}
	if err := repo.Create(ctx, &m); err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err = repo.ExistsForCondition(ctx, "cond-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("expected measurements to exist after create")
	}

	// Other conditions are unaffected.
	exists, _ = repo.ExistsForCondition(ctx, "cond-2")
	if exists {
		t.Fatal("cond-2 should have no measurements")
	}
}

func TestListByCondition_Ordering(t *testing.T) {
	repo := New(newFakeStore())
	ctx := context.Background()

	for _, m := range []domain.CountMeasurement{
		{ID: "b", ConditionID: "c", PageNumber: 2},
		{ID: "a", ConditionID: "c", PageNumber: 2},
		{ID: "z", ConditionID: "c", PageNumber: 1},
	} {
		mm := m
		if err := repo.Create(ctx, &mm); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	out, err := repo.ListByCondition(ctx, "c")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 measurements, got %d", len(out))
	}

	got := []string{out[0].ID, out[1].ID, out[2].ID}
	want := []string{"z", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}

func TestDeleteByCondition(t *testing.T) {
	store := newFakeStore()
	repo := New(store)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		m := domain.CountMeasurement{ID: id, ConditionID: "c1"}
		if err := repo.Create(ctx, &m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := domain.CountMeasurement{ID: "x", ConditionID: "c2"}
	if err := repo.Create(ctx, &other); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.DeleteByCondition(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	exists, _ := repo.ExistsForCondition(ctx, "c1")
	if exists {
		t.Error("c1 measurements not deleted")
	}
	exists, _ = repo.ExistsForCondition(ctx, "c2")
	if !exists {
		t.Error("c2 measurements should be untouched")
	}
}
