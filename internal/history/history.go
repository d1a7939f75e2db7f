// Package history keeps a local ledger of submission outcomes. It never stores
// credentials.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"quickeval/internal/components/assert"
	"quickeval/internal/components/chrono"
	"quickeval/pkg/migrations"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("quickeval/history")

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

type Entry struct {
	// RunId groups the entries recorded by the same batch.
	RunId           string
	CourseSessionId string
	CourseName      string
	Status          Status
	Reason          string
	// Time defaults to the ledger clock's current time when recorded.
	Time time.Time
}

type Ledger struct {
	db    *sql.DB
	clock chrono.TimeAPI
}

// Open opens the ledger stored at `path`, creating it if needed.
func Open(ctx context.Context, path string, clock chrono.TimeAPI) (Ledger, error) {
	assert.NotEmptyStr(path)
	assert.NotNil(clock)

	db, err := migrations.OpenAndMigrateDB(ctx, Schema, path)
	if err != nil {
		return Ledger{}, fmt.Errorf("open history: %w", err)
	}
	return Ledger{db: db, clock: clock}, nil
}

func (l Ledger) Close() error {
	return l.db.Close()
}

// Record appends one outcome to the ledger.
func (l Ledger) Record(ctx context.Context, entry Entry) error {
	ctx, span := tracer.Start(ctx, "Record")
	defer span.End()
	span.SetAttributes(
		attribute.String("course_session_id", entry.CourseSessionId),
		attribute.String("status", string(entry.Status)),
	)

	if entry.Time.IsZero() {
		entry.Time = l.clock.Now()
	}

	_, err := l.db.ExecContext(
		ctx,
		`insert into submission(run_id, course_session_id, course_name, status, reason, submitted_at)
		values (?, ?, ?, ?, ?, ?)`,
		entry.RunId,
		entry.CourseSessionId,
		entry.CourseName,
		string(entry.Status),
		entry.Reason,
		entry.Time.UnixMilli(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// List returns the most recent entries first, at most `limit` of them (every
// entry if limit <= 0).
func (l Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "List")
	defer span.End()

	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(
		ctx,
		`select run_id, course_session_id, course_name, status, reason, submitted_at
		from submission
		order by submitted_at desc, id desc
		limit ?`,
		limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var status string
		var submittedAt int64
		err := rows.Scan(&entry.RunId, &entry.CourseSessionId, &entry.CourseName, &status, &entry.Reason, &submittedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		entry.Status = Status(status)
		entry.Time = time.UnixMilli(submittedAt).In(l.clock.Now().Location())
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
