package repository

import (
	"context"
	"errors"

	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"gorm.io/gorm"
)

// Scope narrows a query; see the scopes declared next to each repository.
type Scope = func(*gorm.DB) *gorm.DB

// BaseRepository defines the operations shared by append-only stores.
// There is deliberately no Update or Delete: records are history.
type BaseRepository[T any] interface {
	Create(ctx context.Context, obj *T) error
	GetByID(ctx context.Context, id any, dest *T) error
	Find(ctx context.Context, dest *[]T, scopes ...Scope) error
}

type baseRepository[T any] struct {
	db       *gorm.DB
	notFound func(id any) error
}

// NewBaseRepository returns a gorm-backed BaseRepository. notFound builds the
// error returned by GetByID for a missing row.
func NewBaseRepository[T any](db *gorm.DB, notFound func(id any) error) BaseRepository[T] {
	if notFound == nil {
		notFound = func(any) error { return appErr.New(appErr.CodeNotFound, "entity not found") }
	}
	return &baseRepository[T]{db: db, notFound: notFound}
}

func (r *baseRepository[T]) Create(ctx context.Context, obj *T) error {
	if err := r.db.WithContext(ctx).Create(obj).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return appErr.Wrap(err, appErr.CodeAlreadyExists, "entity already exists")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "create entity failed")
	}
	return nil
}

func (r *baseRepository[T]) GetByID(ctx context.Context, id any, dest *T) error {
	if err := r.db.WithContext(ctx).First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.notFound(id)
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get entity failed")
	}
	return nil
}

func (r *baseRepository[T]) Find(ctx context.Context, dest *[]T, scopes ...Scope) error {
	if err := r.db.WithContext(ctx).Scopes(scopes...).Find(dest).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "list entities failed")
	}
	return nil
}
