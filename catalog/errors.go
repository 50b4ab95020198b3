package catalog

import (
	goerrors "github.com/goliatone/go-errors"
)

// TextCodeInvalidArgument marks errors raised for a nil entity passed to a write.
const TextCodeInvalidArgument = "INVALID_ARGUMENT"

func invalidArgument(op, kind string) error {
	return goerrors.New(op+" "+kind+": entity is nil", goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidArgument)
}

// IsInvalidArgument reports whether err was raised for a nil entity.
func IsInvalidArgument(err error) bool {
	var e *goerrors.Error
	return goerrors.As(err, &e) && e.Category == goerrors.CategoryBadInput && e.TextCode == TextCodeInvalidArgument
}

// TextCodeRecordNotFound marks writes that matched no stored row.
const TextCodeRecordNotFound = "RECORD_NOT_FOUND"

func rowNotFound(op, kind string, source error) error {
	err := goerrors.New(op+" "+kind+": no matching row", goerrors.CategoryNotFound).
		WithTextCode(TextCodeRecordNotFound)
	err.Source = source
	return err
}
