// Package storage holds the image store backends for binary room uploads
package storage

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"roomhub/internal/config"
	"roomhub/internal/database"
	dbconfig "roomhub/pkg/database"
	"roomhub/pkg/interfaces"
)

const (
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// New opens the backend selected by cfg.Backend
func New(cfg *config.StorageConfig) (interfaces.ImageStore, error) {
	log.Info().Str("module", "storage").Str("backend", cfg.Backend).Msg("Opening image store")

	switch cfg.Backend {
	case BackendDisk:
		return NewDiskStore(cfg.ImagePath)
	case BackendSQLite:
		dbCfg := dbconfig.DefaultConfig()
		dbCfg.DatabasePath = cfg.DatabasePath
		dbCfg.WriteTimeout = cfg.Timeout
		return database.NewManager(dbCfg)
	case BackendBadger:
		return NewBadgerStore(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
