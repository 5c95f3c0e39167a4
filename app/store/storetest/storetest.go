// Package storetest opens throwaway sqlite-backed stores for tests.
package storetest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/popules/ticko-sub001/app/models"
	"github.com/popules/ticko-sub001/app/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated store on a per-test in-memory database.
func New(t *testing.T) *store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s, err := store.New(db, zap.NewNop(), 5*time.Second)
	require.NoError(t, err)
	return s
}

// SeedProfile inserts p, defaulting the watchlist limit to the free tier.
func SeedProfile(t *testing.T, s *store.Store, p models.Profile) {
	t.Helper()
	if p.WatchlistLimit == 0 {
		p.WatchlistLimit = models.FreeWatchlistLimit
	}
	require.NoError(t, s.DB().Create(&p).Error)
}
