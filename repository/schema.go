package repository

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CreateTables creates the table for each model unless it already exists.
// Models are passed as typed nil pointers, (*CategoryTemplate)(nil).
func CreateTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("create table for %T", model))
		}
	}
	return nil
}
