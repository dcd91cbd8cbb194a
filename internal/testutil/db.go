package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	config "taskboard.com/taskboard/internal/configs"
)

// NewTestDB opens a migrated in-memory sqlite database private to t.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}
