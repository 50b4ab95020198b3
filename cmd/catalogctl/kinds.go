package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-catalog-templates/catalog"
	"github.com/goliatone/go-catalog-templates/pkg/di"
	goerrors "github.com/goliatone/go-errors"
)

// kindOps adapts one catalog service to the generic CLI commands.
type kindOps struct {
	list   func(ctx context.Context, parentID int64) (any, error)
	get    func(ctx context.Context, id int64) (any, bool, error)
	insert func(ctx context.Context, raw json.RawMessage) (int, error)
}

// kindOrder is the seed order; mappings reference review types.
var kindOrder = []string{
	catalog.KindCategoryTemplate,
	catalog.KindManufacturerTemplate,
	catalog.KindProductTemplate,
	catalog.KindReviewType,
	catalog.KindProductReviewReviewTypeMapping,
}

func kinds(c *di.Container) map[string]kindOps {
	return map[string]kindOps{
		catalog.KindCategoryTemplate:               entityOps(c.CategoryTemplates()),
		catalog.KindManufacturerTemplate:           entityOps(c.ManufacturerTemplates()),
		catalog.KindProductTemplate:                entityOps(c.ProductTemplates()),
		catalog.KindReviewType:                     entityOps(c.ReviewTypes()),
		catalog.KindProductReviewReviewTypeMapping: mappingOps(c.ReviewTypeMappings()),
	}
}

func lookupKind(c *di.Container, kind string) (kindOps, error) {
	ops, ok := kinds(c)[kind]
	if !ok {
		return kindOps{}, goerrors.New(fmt.Sprintf("unknown kind %q", kind), goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kinds": kindOrder})
	}
	return ops, nil
}

func entityOps[E any](svc *catalog.EntityService[E]) kindOps {
	return kindOps{
		list: func(ctx context.Context, _ int64) (any, error) {
			return svc.GetAll(ctx)
		},
		get: func(ctx context.Context, id int64) (any, bool, error) {
			return svc.GetByID(ctx, id)
		},
		insert: func(ctx context.Context, raw json.RawMessage) (int, error) {
			return insertAll(ctx, raw, svc.Insert)
		},
	}
}

func mappingOps(svc *catalog.ReviewTypeMappingService) kindOps {
	return kindOps{
		list: func(ctx context.Context, productReviewID int64) (any, error) {
			if productReviewID == 0 {
				return nil, goerrors.New("--product-review is required for "+catalog.KindProductReviewReviewTypeMapping, goerrors.CategoryBadInput)
			}
			return svc.GetByProductReviewID(ctx, productReviewID)
		},
		insert: func(ctx context.Context, raw json.RawMessage) (int, error) {
			return insertAll(ctx, raw, svc.Insert)
		},
	}
}

func insertAll[E any](ctx context.Context, raw json.RawMessage, insert func(context.Context, *E) error) (int, error) {
	var records []*E
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode records")
	}
	for i, record := range records {
		if err := insert(ctx, record); err != nil {
			return i, err
		}
	}
	return len(records), nil
}
