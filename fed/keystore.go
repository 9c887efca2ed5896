package fed

import (
	"crypto/rsa"
	"errors"

	"gorm.io/gorm"

	"github.com/tailfeather/fedd/internal/crypto"
	"github.com/tailfeather/fedd/internal/snowflake"
	"github.com/tailfeather/fedd/models"
)

// ErrKeyNotFound is returned when no signing key exists for an actor,
// either because the actor is unprovisioned or every key is archived.
var ErrKeyNotFound = errors.New("fed: signing key not found")

// KeyStore supplies signing keys for local actors. It performs no
// network I/O; keys live in the local database.
type KeyStore struct {
	db *gorm.DB
}

func NewKeyStore(db *gorm.DB) *KeyStore {
	return &KeyStore{db: db}
}

// Signer returns the key id and private key for the local actor with
// the given name.
func (ks *KeyStore) Signer(name string) (string, *rsa.PrivateKey, error) {
	account, err := models.NewAccounts(ks.db).Find(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrKeyNotFound
		}
		return "", nil, err
	}
	return signerForAccount(account)
}

// SignerForAccount returns the key id and private key for the account
// with the given id.
func (ks *KeyStore) SignerForAccount(id snowflake.ID) (string, *rsa.PrivateKey, error) {
	var account models.Account
	if err := ks.db.Joins("Actor").Preload("Keys").First(&account, "accounts.id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrKeyNotFound
		}
		return "", nil, err
	}
	return signerForAccount(&account)
}

func signerForAccount(account *models.Account) (string, *rsa.PrivateKey, error) {
	key, ok := account.CurrentKey()
	if !ok {
		return "", nil, ErrKeyNotFound
	}
	_, priv, err := crypto.ParseRSAPrivateKey(key.PrivateKey)
	if err != nil {
		return "", nil, err
	}
	return account.PublicKeyID(), priv, nil
}
