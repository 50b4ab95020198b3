package catalog

import "github.com/uptrace/bun"

// Entity kinds, used as table names, cache namespaces and event entity types.
const (
	KindCategoryTemplate               = "category_template"
	KindManufacturerTemplate           = "manufacturer_template"
	KindProductTemplate                = "product_template"
	KindReviewType                     = "review_type"
	KindProductReviewReviewTypeMapping = "product_review_review_type_mapping"
)

// CategoryTemplate is a view used to render category pages.
type CategoryTemplate struct {
	bun.BaseModel `bun:"table:category_template,alias:ct" json:"-"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	Name         string `bun:"name,notnull" json:"name"`
	ViewPath     string `bun:"view_path,notnull" json:"view_path"`
	DisplayOrder int    `bun:"display_order,notnull" json:"display_order"`
}

// ManufacturerTemplate is a view used to render manufacturer pages.
type ManufacturerTemplate struct {
	bun.BaseModel `bun:"table:manufacturer_template,alias:mt" json:"-"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	Name         string `bun:"name,notnull" json:"name"`
	ViewPath     string `bun:"view_path,notnull" json:"view_path"`
	DisplayOrder int    `bun:"display_order,notnull" json:"display_order"`
}

// ProductTemplate is a view used to render product pages.
type ProductTemplate struct {
	bun.BaseModel `bun:"table:product_template,alias:pt" json:"-"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	Name         string `bun:"name,notnull" json:"name"`
	ViewPath     string `bun:"view_path,notnull" json:"view_path"`
	DisplayOrder int    `bun:"display_order,notnull" json:"display_order"`
	// IgnoredProductTypes lists comma separated product type ids the template is not offered for.
	IgnoredProductTypes string `bun:"ignored_product_types" json:"ignored_product_types"`
}

// ReviewType is an aspect customers can rate in a product review.
type ReviewType struct {
	bun.BaseModel `bun:"table:review_type,alias:rt" json:"-"`

	ID                    int64  `bun:"id,pk,autoincrement" json:"id"`
	Name                  string `bun:"name,notnull" json:"name"`
	Description           string `bun:"description" json:"description"`
	DisplayOrder          int    `bun:"display_order,notnull" json:"display_order"`
	VisibleToAllCustomers bool   `bun:"visible_to_all_customers,notnull" json:"visible_to_all_customers"`
	IsRequired            bool   `bun:"is_required,notnull" json:"is_required"`
}

// ProductReviewReviewTypeMapping links a product review to a rated review type.
type ProductReviewReviewTypeMapping struct {
	bun.BaseModel `bun:"table:product_review_review_type_mapping,alias:prrt" json:"-"`

	ID              int64 `bun:"id,pk,autoincrement" json:"id"`
	ProductReviewID int64 `bun:"product_review_id,notnull" json:"product_review_id"`
	ReviewTypeID    int64 `bun:"review_type_id,notnull" json:"review_type_id"`
	Rating          int   `bun:"rating,notnull" json:"rating"`
}

// Models returns a typed nil pointer per table, for repository.CreateTables.
func Models() []any {
	return []any{
		(*CategoryTemplate)(nil),
		(*ManufacturerTemplate)(nil),
		(*ProductTemplate)(nil),
		(*ReviewType)(nil),
		(*ProductReviewReviewTypeMapping)(nil),
	}
}
