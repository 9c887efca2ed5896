package models

import (
	"context"
	"time"

	"github.com/tailfeather/fedd/internal/snowflake"
	"gorm.io/gorm"
)

// An Object is a piece of protocol content referenced by an activity,
// e.g. a Note. Objects are immutable once created.
type Object struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	URI       string       `gorm:"uniqueIndex;size:128;not null"`
	ActorID   snowflake.ID `gorm:"index;not null"`
	Actor     *Actor       `gorm:"<-:create;"`
	Type      string       `gorm:"size:16;default:'Note';not null"`
	Content   string       `gorm:"type:text"`
	To        []string     `gorm:"serializer:json"`
	CC        []string     `gorm:"serializer:json"`
}

// Objects is the content side-table. Append and Delete are idempotent
// so a failed delivery construction can compensate by deleting the
// object it just appended.
type Objects struct {
	db *gorm.DB
}

func NewObjects(db *gorm.DB) *Objects {
	return &Objects{db: db}
}

func (o *Objects) Append(ctx context.Context, objects ...*Object) error {
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, obj := range objects {
			if err := tx.Create(obj).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Objects) Delete(ctx context.Context, uri string) error {
	return o.db.WithContext(ctx).Where("uri = ?", uri).Delete(&Object{}).Error
}

// Find returns the object with the given URI, or nil if absent.
func (o *Objects) Find(ctx context.Context, uri string) (*Object, error) {
	var obj Object
	err := o.db.WithContext(ctx).Preload("Actor").Where("uri = ?", uri).Take(&obj).Error
	switch err {
	case nil:
		return &obj, nil
	case gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, err
	}
}
