package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	req.NoError(DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.DatabasePath = ""
	req.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxConnections = 0
	req.Error(cfg.Validate())

	cfg = DefaultConfig()
	cfg.RetryDelay = -1
	req.Error(cfg.Validate())
}

func TestMigrations_ApplyEmbedded(t *testing.T) {
	req := require.New(t)
	db, err := Open(openTestDB(t))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	manager := NewMigrationManager(db)
	migrations, err := manager.LoadMigrations()
	req.NoError(err)
	req.Len(migrations, 1)
	req.Equal("001", migrations[0].Version)
	req.Equal("create_images", migrations[0].Description)

	req.NoError(manager.ApplyMigrations())
	// Second run is a no-op
	req.NoError(manager.ApplyMigrations())

	applied, err := manager.AppliedMigrations()
	req.NoError(err)
	req.Equal([]string{"001"}, applied)

	req.NoError(NewSchemaValidator(db).Validate())
}

func TestMigrations_OrderAndFailure(t *testing.T) {
	req := require.New(t)
	db, err := Open(openTestDB(t))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	source := fstest.MapFS{
		"002_second.sql": {Data: []byte("CREATE TABLE second (id INTEGER)")},
		"001_first.sql":  {Data: []byte("CREATE TABLE first (id INTEGER)")},
		"003_broken.sql": {Data: []byte("CREATE TABLE")},
		"README.md":      {Data: []byte("ignored")},
	}
	manager := NewMigrationManagerFS(db, source)

	migrations, err := manager.LoadMigrations()
	req.NoError(err)
	req.Equal([]string{"001", "002", "003"}, []string{migrations[0].Version, migrations[1].Version, migrations[2].Version})

	req.Error(manager.ApplyMigrations())
	applied, err := manager.AppliedMigrations()
	req.NoError(err)
	req.Equal([]string{"001", "002"}, applied)
}

func TestSchemaValidator_MissingSchema(t *testing.T) {
	db, err := Open(openTestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.Error(t, NewSchemaValidator(db).ValidateTablesExist())
}
