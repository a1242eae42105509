package audit

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/repoflow/repoflow/pkg/transfer"
)

const (
	dbFileName = "repoflow-audit.db"

	// SchemaVersion is bumped whenever the journal tables change shape.
	SchemaVersion = 1
)

// Journal persists the transfer event stream to a local SQLite file so
// batches leave an auditable trail. It implements transfer.Listener;
// chunk-level PROGRESSED events are deliberately not journaled, they
// are a UI concern and would swamp the table.
type Journal struct {
	client *sql.DB
	dir    string
	meta   MetadataClient
	clock  clock.PassiveClock
	log    *slog.Logger

	mu sync.Mutex
}

func Path(dir string) string {
	return filepath.Join(dir, dbFileName)
}

func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, xerrors.Errorf("failed to mkdir: %w", err)
	}

	client, err := sql.Open("sqlite", Path(dir))
	if err != nil {
		return nil, xerrors.Errorf("can't open audit db: %w", err)
	}

	return &Journal{
		client: client,
		dir:    dir,
		meta:   NewMetadata(dir),
		clock:  clock.RealClock{},
		log:    slog.Default(),
	}, nil
}

func (j *Journal) Dir() string {
	return j.dir
}

// Init creates the journal schema. Safe to call on an existing journal.
func (j *Journal) Init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events(
			id INTEGER PRIMARY KEY,
			at TEXT,
			request_type TEXT,
			event_type TEXT,
			repository TEXT,
			path TEXT,
			file TEXT,
			transferred INTEGER,
			error TEXT)`,
		`CREATE INDEX IF NOT EXISTS events_path_idx ON events(repository, path)`,
	}
	for _, stmt := range stmts {
		if _, err := j.client.Exec(stmt); err != nil {
			return xerrors.Errorf("unable to create audit schema: %w", err)
		}
	}

	if err := j.meta.Update(Metadata{
		Version:   SchemaVersion,
		UpdatedAt: j.clock.Now().UTC(),
	}); err != nil {
		return xerrors.Errorf("failed to update audit metadata: %w", err)
	}
	return nil
}

// Metadata returns the journal's persisted schema version and last
// update time.
func (j *Journal) Metadata() (Metadata, error) {
	return j.meta.Get()
}

// Append records one event row.
func (j *Journal) Append(ev transfer.Event) error {
	var errText string
	if ev.Err != nil {
		errText = ev.Err.Error()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.client.Exec(
		`INSERT INTO events(at, request_type, event_type, repository, path, file, transferred, error)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		j.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		ev.RequestType.String(), ev.Type.String(),
		ev.Resource.Repository, ev.Resource.Path, ev.Resource.File,
		ev.Transferred, errText)
	if err != nil {
		return xerrors.Errorf("unable to insert audit event: %w", err)
	}
	return nil
}

// Count returns the number of journaled events, optionally filtered by
// event type ("" matches all).
func (j *Journal) Count(eventType string) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query, args := `SELECT COUNT(*) FROM events`, []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	var count int
	if err := j.client.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, xerrors.Errorf("unable to count audit events: %w", err)
	}
	return count, nil
}

func (j *Journal) Close() error {
	return j.client.Close()
}

// transfer.Listener implementation. Journal errors are logged and
// swallowed; auditing never fails a transfer.

func (j *Journal) Initiated(ev transfer.Event) { j.record(ev) }
func (j *Journal) Progressed(transfer.Event)   {}
func (j *Journal) Succeeded(ev transfer.Event) { j.record(ev) }
func (j *Journal) Corrupted(ev transfer.Event) { j.record(ev) }
func (j *Journal) Failed(ev transfer.Event)    { j.record(ev) }

func (j *Journal) record(ev transfer.Event) {
	if err := j.Append(ev); err != nil {
		j.log.Warn("Failed to journal transfer event",
			slog.String("event", ev.Type.String()), slog.String("path", ev.Resource.Path),
			slog.String("error", err.Error()))
	}
}
