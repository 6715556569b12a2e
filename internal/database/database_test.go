package database

import (
	"path/filepath"
	"testing"

	"github.com/justchokingaround/vguide/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func TestOpen_MigratesSchema(t *testing.T) {
	db := openMemory(t)

	assert.True(t, db.Migrator().HasTable(&Guide{}))
	assert.True(t, db.Migrator().HasTable(&Session{}))
	assert.True(t, db.Migrator().HasIndex(&Guide{}, "Slug"))

	applied, err := AppliedMigrations(db)
	require.NoError(t, err)
	assert.True(t, applied["20261001"])
	assert.True(t, applied["20261008"])
}

func TestGuide_BeforeCreateAssignsID(t *testing.T) {
	db := openMemory(t)

	g := Guide{Slug: "welcome", Title: "Welcome", VideoURL: "https://iframe.videodelivery.net/abc"}
	require.NoError(t, db.Create(&g).Error)
	assert.Len(t, g.ID, 36)

	kept := Guide{ID: "fixed-id", Slug: "other", Title: "Other", VideoURL: "/tmp/a.mp4"}
	require.NoError(t, db.Create(&kept).Error)
	assert.Equal(t, "fixed-id", kept.ID)

	dup := Guide{Slug: "welcome", Title: "Again", VideoURL: "x"}
	assert.Error(t, db.Create(&dup).Error)
}

func TestRunMigrations_BackfillsAndIsIdempotent(t *testing.T) {
	db := openMemory(t)

	require.NoError(t, db.Exec(`INSERT INTO guides (id, slug, title, provider, video_url, language)
		VALUES ('1', 'cf', 'CF', '', 'https://customer-x.cloudflarestream.com/a/iframe', ' DE '),
		       ('2', 'bn', 'Bunny', '', 'https://iframe.mediadelivery.net/embed/1/b', ''),
		       ('3', 'lc', 'Local', '', '/srv/guide.mp4', 'en')`).Error)

	// forget the recorded runs so the data migrations apply again
	require.NoError(t, db.Exec("DELETE FROM schema_migrations").Error)
	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db))

	var guides []Guide
	require.NoError(t, db.Order("id").Find(&guides).Error)
	require.Len(t, guides, 3)
	assert.Equal(t, "cloudflare", guides[0].Provider)
	assert.Equal(t, "de", guides[0].Language)
	assert.Equal(t, "bunny", guides[1].Provider)
	assert.Equal(t, "en", guides[1].Language)
	assert.Equal(t, "", guides[2].Provider)

	var count int64
	require.NoError(t, db.Table("schema_migrations").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestExtractMigrationName(t *testing.T) {
	assert.Equal(t, "20261001", extractMigrationName("20261001_normalize_language.sql"))
	assert.Equal(t, "notes.sql", extractMigrationName("notes.sql"))
}

func TestInit_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vguide.db")
	require.NoError(t, Init(&config.DatabaseConfig{Path: path, MaxConnections: 2, WALMode: true, AutoVacuum: true}))
	t.Cleanup(func() { _ = Close(); DB = nil })

	require.NotNil(t, GetDB())
	assert.FileExists(t, path)
}
