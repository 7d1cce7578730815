package reliability

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aristath/tradeledger/internal/database"
)

// Snapshotter writes a consistent copy of one store to a local file.
type Snapshotter interface {
	// Name identifies the store inside the archive metadata.
	Name() string
	// Filename is the archive member the snapshot is stored under.
	Filename() string
	Snapshot(ctx context.Context, dst string) error
}

// SQLiteSnapshotter snapshots a SQLite database with VACUUM INTO.
type SQLiteSnapshotter struct {
	db *database.DB
}

// NewSQLiteSnapshotter creates a snapshotter for db.
func NewSQLiteSnapshotter(db *database.DB) *SQLiteSnapshotter {
	return &SQLiteSnapshotter{db: db}
}

func (s *SQLiteSnapshotter) Name() string     { return s.db.Name() }
func (s *SQLiteSnapshotter) Filename() string { return s.db.Name() + ".db" }

func (s *SQLiteSnapshotter) Snapshot(ctx context.Context, dst string) error {
	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.db.SnapshotTo(ctx, dst)
}

// StreamBackuper is a store that can stream a full backup, such as badger.
type StreamBackuper interface {
	Backup(w io.Writer) error
}

// StreamSnapshotter snapshots a StreamBackuper into a file.
type StreamSnapshotter struct {
	name  string
	store StreamBackuper
}

// NewStreamSnapshotter creates a snapshotter named name over store.
func NewStreamSnapshotter(name string, store StreamBackuper) *StreamSnapshotter {
	return &StreamSnapshotter{name: name, store: store}
}

func (s *StreamSnapshotter) Name() string     { return s.name }
func (s *StreamSnapshotter) Filename() string { return s.name + ".bak" }

func (s *StreamSnapshotter) Snapshot(ctx context.Context, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := s.store.Backup(f); err != nil {
		f.Close()
		return fmt.Errorf("stream backup of %s failed: %w", s.name, err)
	}
	return f.Close()
}
