package models

import (
	"time"

	"github.com/tailfeather/fedd/internal/algorithms"
	"github.com/tailfeather/fedd/internal/snowflake"
	"gorm.io/gorm"
)

// A Follower records that a remote actor follows one of our local
// actors. Only the remote actor's URI is stored; the inbox is resolved
// at delivery time so a moved or rekeyed follower is picked up.
type Follower struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	ActorID   snowflake.ID `gorm:"uniqueIndex:idx_follower_actor_uri;not null"`
	URI       string       `gorm:"uniqueIndex:idx_follower_actor_uri;size:128;not null"`
}

// A Following records that one of our local actors follows a remote
// actor.
type Following struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	ActorID   snowflake.ID `gorm:"uniqueIndex:idx_following_actor_uri;not null"`
	URI       string       `gorm:"uniqueIndex:idx_following_actor_uri;size:128;not null"`
}

type Relationships struct {
	db *gorm.DB
}

func NewRelationships(db *gorm.DB) *Relationships {
	return &Relationships{db: db}
}

// Follow records uri as a follower of the given local actor.
// Recording the same follower twice is a no-op.
func (r *Relationships) Follow(actor *Actor, uri string) error {
	return r.db.Where(&Follower{ActorID: actor.ID, URI: uri}).
		FirstOrCreate(&Follower{ActorID: actor.ID, URI: uri}).Error
}

// Unfollow removes uri from the given local actor's followers.
func (r *Relationships) Unfollow(actor *Actor, uri string) error {
	return r.db.Where("actor_id = ? and uri = ?", actor.ID, uri).Delete(&Follower{}).Error
}

// Followers returns the URIs of the actors following the given local
// actor, oldest first.
func (r *Relationships) Followers(actor *Actor) ([]string, error) {
	var followers []Follower
	if err := r.db.Where("actor_id = ?", actor.ID).Order("id").Find(&followers).Error; err != nil {
		return nil, err
	}
	return algorithms.Map(followers, func(f Follower) string { return f.URI }), nil
}

// Following returns the URIs of the actors the given local actor
// follows, oldest first.
func (r *Relationships) Following(actor *Actor) ([]string, error) {
	var following []Following
	if err := r.db.Where("actor_id = ?", actor.ID).Order("id").Find(&following).Error; err != nil {
		return nil, err
	}
	return algorithms.Map(following, func(f Following) string { return f.URI }), nil
}

// AddFollowing records that the given local actor follows uri.
func (r *Relationships) AddFollowing(actor *Actor, uri string) error {
	return r.db.Where(&Following{ActorID: actor.ID, URI: uri}).
		FirstOrCreate(&Following{ActorID: actor.ID, URI: uri}).Error
}
