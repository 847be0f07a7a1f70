package journal

import (
	"context"
	"errors"
	"time"

	"github.com/psantana5/callguard/pkg/guard"
)

// Entry is one exhausted guarded invocation.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Operation string    `json:"operation" yaml:"operation"`
	Kind      string    `json:"kind" yaml:"kind"`
	Message   string    `json:"message" yaml:"message"`
	Error     string    `json:"error" yaml:"error"`
	Attempts  int       `json:"attempts" yaml:"attempts"`
	Outcome   string    `json:"outcome" yaml:"outcome"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Journal persists failure entries.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	CountByKind(ctx context.Context) (map[string]int, error)
	Close() error
}

// Config selects and configures a journal backend.
type Config struct {
	Type string `mapstructure:"type"` // "memory", "sqlite" or "postgres"
	DSN  string `mapstructure:"dsn"`
	Path string `mapstructure:"path"` // sqlite file path

	MaxEntries      int           `mapstructure:"max_entries"` // memory journal capacity
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

var (
	// ErrUnsupportedJournal is returned for an unknown Config.Type.
	ErrUnsupportedJournal = errors.New("unsupported journal type")
)

// New opens the journal selected by cfg.Type.
func New(cfg Config) (Journal, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryJournal(cfg.MaxEntries), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = cfg.DSN
		}
		if path == "" {
			path = "callguard.db"
		}
		return NewSQLiteJournal(path)
	case "postgres", "postgresql":
		return NewPostgresJournal(cfg)
	default:
		return nil, ErrUnsupportedJournal
	}
}

// FromFailure converts a guard failure into an entry.
func FromFailure(f guard.Failure) Entry {
	e := Entry{
		ID:        f.ID,
		Operation: f.Operation,
		Kind:      f.Kind.String(),
		Message:   f.Message,
		Attempts:  f.Attempts,
		Outcome:   f.Outcome.String(),
		Timestamp: f.Time.UTC(),
	}
	if f.Err != nil {
		e.Error = f.Err.Error()
	}
	return e
}

// Sink adapts a Journal to guard.DiagnosticSink.
type Sink struct {
	Journal Journal
}

// Record implements guard.DiagnosticSink.
func (s Sink) Record(ctx context.Context, f guard.Failure) error {
	return s.Journal.Record(ctx, FromFailure(f))
}
