package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/model"
)

const sqliteSchemaVersion = 1

func init() {
	Register(TypeSQLite, func(ctx context.Context, cfg *Config) (Store, error) {
		return NewSQLiteStore(ctx, cfg.SQLiteFile, cfg.Key)
	})
}

// SQLiteStore keeps the snapshot in a single row keyed by the snapshot key.
type SQLiteStore struct {
	db  *sql.DB
	key string
	log *log.Logger
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, path, key string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store: no path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("sqlite store: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open failed: %w", err)
	}
	// one writer is all we need
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: ping failed: %w", err)
	}
	s := &SQLiteStore{db: db, key: key, log: log.Default().Named("snapshot.sqlite")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= sqliteSchemaVersion {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return err
	}
	s.log.Debug("schema migrated", log.Int("version", sqliteSchemaVersion))
	return tx.Commit()
}

func (s *SQLiteStore) Save(ctx context.Context, state *model.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO snapshots (key, data, updated_at_ms) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at_ms = excluded.updated_at_ms`,
		s.key, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite store: save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*model.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM snapshots WHERE key = ?", s.key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("sqlite store: load: %w", err)
	}
	return Decode([]byte(data))
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE key = ?", s.key); err != nil {
		return fmt.Errorf("sqlite store: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
