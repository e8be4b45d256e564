package template

import (
	"context"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Store persists transient symbol templates.
type Store interface {
	Save(ctx context.Context, tpl *domain.SymbolTemplate) error
	Get(ctx context.Context, id string) (domain.SymbolTemplate, error)
	Delete(ctx context.Context, id string) error
}

// DocumentReader verifies document existence before rendering.
type DocumentReader interface {
	Get(ctx context.Context, id string) (domain.Document, error)
}
