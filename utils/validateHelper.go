package utils

import (
	"context"

	"github.com/carteiralab/carteira_backend/config"
)

// ValidateResourceId checks that the id exists within the owner's scope.
// Returns ErrorRecordNotFound when missing.
func ValidateResourceId[T any](ctx context.Context, ownerId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, ownerId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ResourceCountWhere counts records, using WHERE owner_id = ? AND $condition.
// owner_id can be blank for admin callers.
func ResourceCountWhere[T any](ctx context.Context, ownerId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if ownerId != "" {
		dbCtx.Where("owner_id = ?", ownerId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
