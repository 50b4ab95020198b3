package catalog

import (
	"context"
	"strconv"

	"github.com/goliatone/go-catalog-templates/events"
	"github.com/goliatone/go-catalog-templates/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	"go.uber.org/zap"
)

// ReviewTypeMappingService reads and inserts product review to review type links.
// Mappings are immutable once written; there is no update or delete.
type ReviewTypeMappingService struct {
	repo      CachedRepository[ProductReviewReviewTypeMapping]
	publisher events.Publisher
	logger    *zap.Logger
}

// NewReviewTypeMappingService builds the mapping service over repo.
func NewReviewTypeMappingService(repo CachedRepository[ProductReviewReviewTypeMapping], publisher events.Publisher, opts ...Option) *ReviewTypeMappingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	o := buildOptions(opts)
	return &ReviewTypeMappingService{
		repo:      repo,
		publisher: publisher,
		logger:    o.logger.With(zap.String("entity", repo.Namespace())),
	}
}

// GetByProductReviewID returns the mappings of one product review ordered by id.
// Each product review is cached under its own key.
func (s *ReviewTypeMappingService) GetByProductReviewID(ctx context.Context, productReviewID int64) ([]*ProductReviewReviewTypeMapping, error) {
	return s.repo.ListBy(ctx, repositorycache.Query{
		Name: "by_product_review",
		Args: []any{productReviewID},
		Criteria: []repository.SelectCriteria{
			unpaged,
			repository.SelectBy("product_review_id", "=", strconv.FormatInt(productReviewID, 10)),
			repository.OrderBy("id"),
		},
	})
}

// Insert persists mapping then publishes an inserted event.
func (s *ReviewTypeMappingService) Insert(ctx context.Context, mapping *ProductReviewReviewTypeMapping) error {
	if mapping == nil {
		return invalidArgument("insert", s.repo.Namespace())
	}
	if _, err := s.repo.Create(ctx, mapping); err != nil {
		return err
	}
	s.logger.Debug("mapping inserted", zap.Int64("product_review_id", mapping.ProductReviewID))
	return events.EntityInserted(ctx, s.publisher, s.repo.Namespace(), mapping)
}
