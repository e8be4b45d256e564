package measurement

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

type fakeStore struct {
	created []domain.CountMeasurement
	failAt  int // 1-based index of the create call that fails; 0 = never
	list    []domain.CountMeasurement
	listErr error
	creates int
}

func (f *fakeStore) Create(_ context.Context, m *domain.CountMeasurement) error {
	f.creates++
	if f.failAt > 0 && f.creates == f.failAt {
		return errors.New("store write failed")
	}
	f.created = append(f.created, *m)
	return nil
}

func (f *fakeStore) ListByCondition(_ context.Context, _ string) ([]domain.CountMeasurement, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeStore) DeleteByCondition(_ context.Context, _ string) error {
	f.list = nil
	return nil
}

type fakeConditions struct {
	err error
}

func (f *fakeConditions) Get(_ context.Context, id string) (domain.Condition, error) {
	if f.err != nil {
		return domain.Condition{}, f.err
	}
	return domain.Condition{ID: id, ProjectID: "proj-1"}, nil
}

type fakeRaster struct {
	renders   int
	failPages map[string]bool // "docID:page"
}

func (f *fakeRaster) RenderPage(
	_ context.Context, documentID string, pageNumber int, _ float64,
) (domain.PageImage, error) {
	if f.failPages[fmt.Sprintf("%s:%d", documentID, pageNumber)] {
		return domain.PageImage{}, errors.New("renderer crashed")
	}
	f.renders++
	return domain.PageImage{Image: image.NewGray(image.Rect(0, 0, 400, 200)), Width: 400, Height: 200}, nil
}

func (f *fakeRaster) PageCount(_ context.Context, _ string) (int, error) {
	return 1, nil
}

func newService(store *fakeStore, conds *fakeConditions, raster *fakeRaster) *Service {
	return New(store, conds, raster, Options{
		ThumbnailWidth: 80, ThumbnailPadding: 0.5, MaxThumbnails: 100, PageRenderScale: 2.0,
	})
}

func someMatches(n int) []domain.Match {
	out := make([]domain.Match, n)
	for i := range out {
		out[i] = domain.Match{
			ID:          fmt.Sprintf("m-%d", i),
			Confidence:  0.9,
			BoundingBox: domain.BoundingBox{X: 0.2, Y: 0.3, Width: 0.1, Height: 0.1},
			PageNumber:  1,
			DocumentID:  "doc-1",
		}
	}
	return out
}

func TestMaterialize(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store, &fakeConditions{}, &fakeRaster{})
	cond := domain.Condition{ID: "cond-1", ProjectID: "proj-1"}

	created, err := svc.Materialize(context.Background(), cond, someMatches(3))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if created != 3 || len(store.created) != 3 {
		t.Fatalf("created = %d, stored = %d", created, len(store.created))
	}

	got := store.created[0]
	if got.ConditionID != "cond-1" || got.ProjectID != "proj-1" || got.DocumentID != "doc-1" {
		t.Fatalf("measurement identity wrong: %+v", got)
	}
	if got.CalculatedValue != 1 {
		t.Fatalf("calculated value = %g, want 1", got.CalculatedValue)
	}
	// Center of {0.2, 0.3, 0.1, 0.1}.
	if got.CenterPoint.X != 0.25 || got.CenterPoint.Y != 0.35 {
		t.Fatalf("center point = %+v", got.CenterPoint)
	}
	if got.ID == "" || got.ID == store.created[1].ID {
		t.Fatal("measurement IDs must be unique and non-empty")
	}
}

func TestMaterializeStopsAtFirstFailure(t *testing.T) {
	store := &fakeStore{failAt: 4}
	svc := newService(store, &fakeConditions{}, &fakeRaster{})

	created, err := svc.Materialize(context.Background(), domain.Condition{ID: "c"}, someMatches(10))
	if err == nil {
		t.Fatal("expected error")
	}
	if created != 3 {
		t.Fatalf("created = %d, want 3 (writes before the failing one)", created)
	}
	if store.creates != 4 {
		t.Fatalf("create attempts = %d, want 4 (no writes after failure)", store.creates)
	}
}

func TestMaterializeEmpty(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store, &fakeConditions{}, &fakeRaster{})

	created, err := svc.Materialize(context.Background(), domain.Condition{ID: "c"}, nil)
	if err != nil || created != 0 {
		t.Fatalf("created = %d, err = %v", created, err)
	}
}

func TestResultsUnknownCondition(t *testing.T) {
	svc := newService(&fakeStore{}, &fakeConditions{err: domain.ErrConditionNotFound}, &fakeRaster{})

	_, err := svc.Results(context.Background(), "nope")
	if !errors.Is(err, domain.ErrConditionNotFound) {
		t.Fatalf("expected ErrConditionNotFound, got %v", err)
	}
}

func TestThumbnailsRendersEachPageOnce(t *testing.T) {
	store := &fakeStore{list: []domain.CountMeasurement{
		{ID: "m1", DocumentID: "doc-1", PageNumber: 1,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}},
		{ID: "m2", DocumentID: "doc-1", PageNumber: 1,
			SourceBoundingBox: domain.BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1}},
		{ID: "m3", DocumentID: "doc-1", PageNumber: 2,
			SourceBoundingBox: domain.BoundingBox{X: 0.3, Y: 0.3, Width: 0.1, Height: 0.1}},
	}}
	raster := &fakeRaster{failPages: map[string]bool{}}
	svc := newService(store, &fakeConditions{}, raster)

	thumbs, err := svc.Thumbnails(context.Background(), "cond-1", 0)
	if err != nil {
		t.Fatalf("Thumbnails: %v", err)
	}
	if len(thumbs) != 3 {
		t.Fatalf("got %d thumbnails, want 3", len(thumbs))
	}
	if raster.renders != 2 {
		t.Fatalf("page renders = %d, want 2 (one per distinct page)", raster.renders)
	}

	th := thumbs[0]
	if th.MeasurementID != "m1" || th.MimeType != "image/png" {
		t.Fatalf("thumbnail metadata: %+v", th)
	}
	if th.Width != 80 {
		t.Fatalf("thumbnail width = %d, want 80", th.Width)
	}
	if _, err := base64.StdEncoding.DecodeString(th.ImageBase64); err != nil {
		t.Fatalf("thumbnail payload is not base64: %v", err)
	}
}

func TestThumbnailsSkipsFailedPage(t *testing.T) {
	store := &fakeStore{list: []domain.CountMeasurement{
		{ID: "m1", DocumentID: "doc-1", PageNumber: 1,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}},
		{ID: "m2", DocumentID: "doc-1", PageNumber: 2,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}},
		{ID: "m3", DocumentID: "doc-1", PageNumber: 2,
			SourceBoundingBox: domain.BoundingBox{X: 0.4, Y: 0.4, Width: 0.1, Height: 0.1}},
	}}
	raster := &fakeRaster{failPages: map[string]bool{"doc-1:2": true}}
	svc := newService(store, &fakeConditions{}, raster)

	thumbs, err := svc.Thumbnails(context.Background(), "cond-1", 0)
	if err != nil {
		t.Fatalf("Thumbnails: %v", err)
	}
	if len(thumbs) != 1 || thumbs[0].MeasurementID != "m1" {
		t.Fatalf("expected only page-1 thumbnail, got %+v", thumbs)
	}
}

func TestThumbnailsTruncation(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.list = append(store.list, domain.CountMeasurement{
			ID: fmt.Sprintf("m%d", i), DocumentID: "doc-1", PageNumber: 1,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1},
		})
	}
	raster := &fakeRaster{}
	svc := New(store, &fakeConditions{}, raster, Options{
		ThumbnailWidth: 80, ThumbnailPadding: 0.5, MaxThumbnails: 2, PageRenderScale: 2.0,
	})

	thumbs, err := svc.Thumbnails(context.Background(), "cond-1", 0)
	if err != nil {
		t.Fatalf("Thumbnails: %v", err)
	}
	if len(thumbs) != 2 {
		t.Fatalf("got %d thumbnails, want 2", len(thumbs))
	}
}

func TestThumbnailsCallerLimitSkipsRendering(t *testing.T) {
	store := &fakeStore{list: []domain.CountMeasurement{
		{ID: "m1", DocumentID: "doc-1", PageNumber: 1,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}},
		{ID: "m2", DocumentID: "doc-1", PageNumber: 2,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}},
		{ID: "m3", DocumentID: "doc-1", PageNumber: 3,
			SourceBoundingBox: domain.BoundingBox{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}},
	}}
	raster := &fakeRaster{}
	svc := newService(store, &fakeConditions{}, raster)

	thumbs, err := svc.Thumbnails(context.Background(), "cond-1", 1)
	if err != nil {
		t.Fatalf("Thumbnails: %v", err)
	}
	if len(thumbs) != 1 {
		t.Fatalf("got %d thumbnails, want 1", len(thumbs))
	}
	if raster.renders != 1 {
		t.Fatalf("page renders = %d, want 1: limited pages must not render", raster.renders)
	}
}

func TestThumbnailPaddingClampedAtEdge(t *testing.T) {
	// Box flush against the page corner; padding must clamp, not error.
	store := &fakeStore{list: []domain.CountMeasurement{
		{ID: "m1", DocumentID: "doc-1", PageNumber: 1,
			SourceBoundingBox: domain.BoundingBox{X: 0, Y: 0, Width: 0.05, Height: 0.05}},
	}}
	svc := newService(store, &fakeConditions{}, &fakeRaster{})

	thumbs, err := svc.Thumbnails(context.Background(), "cond-1", 0)
	if err != nil {
		t.Fatalf("Thumbnails: %v", err)
	}
	if len(thumbs) != 1 {
		t.Fatalf("got %d thumbnails, want 1", len(thumbs))
	}
}
