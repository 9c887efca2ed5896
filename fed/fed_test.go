package fed

import (
	"net/http"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tailfeather/fedd/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)

	db, err := gorm.Open(&sqlite.Dialector{DSN: "file::memory:"}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)

	// the in-memory database exists per connection; keep to one so the
	// dispatcher's workers all see the same tables.
	sqlDB, err := db.DB()
	require.NoError(err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(models.AutoMigrate(db))
	return db
}

func testAccount(t *testing.T, db *gorm.DB, name string) *models.Account {
	t.Helper()
	account, err := models.NewAccounts(db).Create(name, "a.example", "", "")
	require.NoError(t, err)
	return account
}

func activityJSON(w http.ResponseWriter, obj map[string]any) {
	w.Header().Set("Content-Type", "application/activity+json")
	json.MarshalFull(w, obj)
}
