package models

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/tailfeather/fedd/internal/crypto"
	"github.com/tailfeather/fedd/internal/snowflake"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// An Account is a locally provisioned actor.
// An Account belongs to an Actor and owns that actor's signing keys.
type Account struct {
	ID                snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	UpdatedAt         time.Time
	ActorID           snowflake.ID
	Actor             *Actor `gorm:"<-:create;"`
	Email             string `gorm:"size:64"`
	EncryptedPassword []byte `gorm:"size:60"`
	Keys              []AccountKey `gorm:"constraint:OnDelete:CASCADE;"`
}

func (a *Account) Name() string {
	return a.Actor.Name
}

func (a *Account) Domain() string {
	return a.Actor.Domain
}

// PublicKeyID returns the id the account signs outgoing requests as.
func (a *Account) PublicKeyID() string {
	return a.Actor.PublicKeyID()
}

// PrivKey returns the account's active private key.
func (a *Account) PrivKey() (*rsa.PrivateKey, error) {
	key, ok := a.CurrentKey()
	if !ok {
		return nil, errors.New("account has no active signing key")
	}
	_, priv, err := crypto.ParseRSAPrivateKey(key.PrivateKey)
	return priv, err
}

// CurrentKey returns the account's active signing key. Keys are never
// deleted on rotation, only archived, so activities signed before a
// rotation remain verifiable against the archived public keys.
func (a *Account) CurrentKey() (*AccountKey, bool) {
	var current *AccountKey
	for i := range a.Keys {
		key := &a.Keys[i]
		if key.ArchivedAt != nil {
			continue
		}
		if current == nil || key.CreatedAt.After(current.CreatedAt) {
			current = key
		}
	}
	return current, current != nil
}

// An AccountKey is one generation of an account's RSA keypair, PEM
// encoded. The newest unarchived row is the signing key.
type AccountKey struct {
	ID         uint32 `gorm:"primarykey"`
	CreatedAt  time.Time
	ArchivedAt *time.Time
	AccountID  snowflake.ID `gorm:"index;not null"`
	PrivateKey []byte       `gorm:"not null"`
}

type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

// AccountForActor returns the account owning the given local actor.
func (a *Accounts) AccountForActor(actor *Actor) (*Account, error) {
	var account Account
	if err := a.db.Joins("Actor").Preload("Keys").First(&account, "actor_id = ?", actor.ID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Find returns the account for the local actor with the given name.
func (a *Accounts) Find(name string) (*Account, error) {
	actor, err := NewActors(a.db).FindLocal(name)
	if err != nil {
		return nil, err
	}
	return a.AccountForActor(actor)
}

// Create provisions a local actor with a fresh keypair.
func (a *Accounts) Create(name, domain, email, password string) (*Account, error) {
	var account Account
	err := a.db.Transaction(func(tx *gorm.DB) error {
		keypair, err := crypto.GenerateRSAKeypair()
		if err != nil {
			return err
		}

		var passwd []byte
		if password != "" {
			passwd, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
		}

		actor := &Actor{
			ID:          snowflake.Now(),
			Type:        "LocalPerson",
			URI:         "https://" + domain + "/users/" + name,
			Name:        name,
			Domain:      domain,
			DisplayName: name,
			PublicKey:   keypair.PublicKey,
		}
		if err := tx.Create(actor).Error; err != nil {
			return err
		}

		account = Account{
			ID:                snowflake.Now(),
			ActorID:           actor.ID,
			Actor:             actor,
			Email:             email,
			EncryptedPassword: passwd,
			Keys: []AccountKey{
				{PrivateKey: keypair.PrivateKey},
			},
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}
