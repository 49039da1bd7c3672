package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeExecer records statements. failOn makes the n-th call (1-based)
// return err.
type fakeExecer struct {
	calls  []execCall
	failOn int
	err    error
	tag    string
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.failOn == len(f.calls) {
		return pgconn.CommandTag{}, f.err
	}
	tag := f.tag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (f *fakeExecer) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("connection refused")
}

func (f *fakeExecer) matching(fragment string) []execCall {
	var out []execCall
	for _, c := range f.calls {
		if strings.Contains(c.sql, fragment) {
			out = append(out, c)
		}
	}
	return out
}

type fakeTx struct {
	pgx.Tx
	exec *fakeExecer
}

func (t fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.exec.Exec(ctx, sql, args...)
}

type fakeTransactor struct {
	exec       *fakeExecer
	committed  bool
	rolledBack bool
}

func (f *fakeTransactor) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(fakeTx{exec: f.exec}); err != nil {
		f.rolledBack = true
		return err
	}
	f.committed = true
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rowsTag(n int) string {
	return fmt.Sprintf("UPDATE %d", n)
}
