package models

import (
	"fmt"
	"time"

	"github.com/tailfeather/fedd/internal/snowflake"
	"gorm.io/gorm"
)

// An Actor is a federated identity capable of sending and receiving
// activities. Local actors have type LocalPerson and an associated
// Account holding their signing keys.
type Actor struct {
	ID          snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	UpdatedAt   time.Time
	Type        string `gorm:"size:16;default:'Person';not null"`
	URI         string `gorm:"uniqueIndex;size:128;not null"`
	Name        string `gorm:"size:64;uniqueIndex:idx_actor_name_domain;not null"`
	Domain      string `gorm:"size:64;uniqueIndex:idx_actor_name_domain;not null"`
	DisplayName string `gorm:"size:128"`
	Note        string `gorm:"type:text"`
	PublicKey   []byte `gorm:"type:blob;not null"`
}

func (a *Actor) Acct() string {
	if a.IsLocal() {
		return a.Name
	}
	return fmt.Sprintf("%s@%s", a.Name, a.Domain)
}

func (a *Actor) IsLocal() bool {
	return a.Type == "LocalPerson"
}

// PublicKeyID returns the id the actor's public key is published under.
func (a *Actor) PublicKeyID() string {
	return fmt.Sprintf("%s#main-key", a.URI)
}

func (a *Actor) Inbox() string {
	return a.URI + "/inbox"
}

func (a *Actor) FollowersURI() string {
	return a.URI + "/followers"
}

func (a *Actor) FollowingURI() string {
	return a.URI + "/following"
}

type Actors struct {
	db *gorm.DB
}

func NewActors(db *gorm.DB) *Actors {
	return &Actors{db: db}
}

// FindLocal returns the local actor with the given name.
func (a *Actors) FindLocal(name string) (*Actor, error) {
	var actor Actor
	if err := a.db.Where("name = ? and type = ?", name, "LocalPerson").Take(&actor).Error; err != nil {
		return nil, err
	}
	return &actor, nil
}

// FindByURI returns the actor with the given URI.
func (a *Actors) FindByURI(uri string) (*Actor, error) {
	var actor Actor
	if err := a.db.Where("uri = ?", uri).Take(&actor).Error; err != nil {
		return nil, err
	}
	return &actor, nil
}
