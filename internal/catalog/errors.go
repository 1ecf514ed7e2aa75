package catalog

import (
	"context"
	"errors"

	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/database"
)

// translate maps store failures onto client-facing error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, database.ErrStockNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "item not found")
	case errors.Is(err, database.ErrDuplicateStock):
		return apperr.Wrap(apperr.KindDuplicate, err, "duplicate items detected")
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return apperr.Wrap(apperr.KindConflict, err, "item was modified by another request")
	case errors.Is(err, database.ErrUserNotFound):
		return apperr.Wrap(apperr.KindUnauthorized, err, "owner account not found")
	case database.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindValidation, err, "quantity and price must not be negative")
	case database.IsOutOfRange(err):
		return apperr.Wrap(apperr.KindValidation, err, "value out of range")
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindUnavailable, err, "store timed out")
	}

	return apperr.Wrap(apperr.KindUnavailable, err, "store unavailable")
}
