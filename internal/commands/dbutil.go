package commands

import (
	"database/sql"
	"log/slog"

	"github.com/dotcommander/hivehook/internal/history"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

func withHistory(fn func(db *DB) error) error {
	db, err := history.Open()
	if err != nil {
		return cmdErr(err)
	}
	defer func() { _ = db.Close() }()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

// withHistorySilent runs fn against the history archive, logging failures
// instead of returning them. Hooks use this: the archive is a best-effort
// mirror and must never affect hook output.
func withHistorySilent(fn func(db *DB) error) {
	db, err := history.Open()
	if err != nil {
		slog.Debug("history unavailable", "error", err)
		return
	}
	defer func() { _ = db.Close() }()

	if err := fn(db); err != nil {
		slog.Debug("history write failed", "error", err)
	}
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	slog.Error("command error", "error", err.Error())
	return printedError{err: err}
}
