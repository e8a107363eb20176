package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	dbconfig "roomhub/pkg/database"
	"roomhub/pkg/interfaces"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Image is one stored binary upload
type Image struct {
	ID        string
	MimeType  string
	Extension string
	Size      int64
	Data      []byte
	CreatedAt time.Time
}

// Manager is the SQLite-backed image store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the embedded migrations and starts the writer
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	log.Info().Str("module", "database").Str("path", config.DatabasePath).Msg("SQLite image store ready")
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: A failed write is retried exactly once after RetryDelay
			err := op.operation(m.db)
			if err != nil {
				log.Warn().Str("module", "database").Err(err).Dur("retry_in", m.config.RetryDelay).Msg("Database write failed, retrying")
				time.Sleep(m.config.RetryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Error().Str("module", "database").Err(err).Msg("Database write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Debug().Str("module", "database").Msg("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	// TECHNICAL DISCOVERY: Once queued the operation always completes, so the
	// result channel is buffered and abandoning it on ctx cancel is safe
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store persists data under a fresh uuid and returns the id
func (m *Manager) Store(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	mtype := mimetype.Detect(data)

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO images (id, mime_type, extension, size, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, mtype.String(), mtype.Extension(), len(data), data, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Debug().Str("module", "database").Str("image_id", id).Str("mime", mtype.String()).Int("size", len(data)).Msg("Image stored")
	return id, nil
}

// Get retrieves a stored image by id
// ARCHITECTURAL DISCOVERY: Reads bypass the writer and run on the pool concurrently
func (m *Manager) Get(ctx context.Context, id string) (*Image, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, mime_type, extension, size, data, created_at FROM images WHERE id = ?`, id)

	var image Image
	err := row.Scan(&image.ID, &image.MimeType, &image.Extension, &image.Size, &image.Data, &image.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query image: %w", err)
	}
	return &image, nil
}

// Count returns how many images are stored
func (m *Manager) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := m.Count(ctx); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the writer and the connection pool
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
