package db

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createRunsQuery = `CREATE TABLE IF NOT EXISTS archive_runs (
		run_id uuid PRIMARY KEY,
		guild_id bigint NOT NULL,
		run_dir text NOT NULL,
		started_at timestamptz NOT NULL DEFAULT now(),
		finished_at timestamptz,
		channels int,
		messages bigint
	);`
	createChannelsQuery = `CREATE TABLE IF NOT EXISTS archive_channels (
		run_id uuid NOT NULL REFERENCES archive_runs(run_id),
		channel_id bigint NOT NULL,
		name text NOT NULL,
		messages bigint NOT NULL,
		PRIMARY KEY (run_id, channel_id)
	);`

	insertRunQuery     = "INSERT INTO archive_runs (run_id, guild_id, run_dir) VALUES ($1, $2, $3);"
	finishRunQuery     = "UPDATE archive_runs SET finished_at = now(), channels = $2, messages = $3 WHERE run_id = $1;"
	upsertChannelQuery = `INSERT INTO archive_channels (run_id, channel_id, name, messages) VALUES ($1, $2, $3, $4)
		ON CONFLICT(run_id, channel_id) DO UPDATE SET name=excluded.name, messages=excluded.messages;`
)

// DB records run and per-channel totals so finished exports can be queried
// without walking the output directories. It is optional; the archiver runs
// without it.
type DB struct {
	pool *pgxpool.Pool
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Init creates the index tables when they are missing.
func (db *DB) Init(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, createRunsQuery); err != nil {
		return err
	}
	_, err := db.pool.Exec(ctx, createChannelsQuery)
	return err
}

func (db *DB) StartRun(ctx context.Context, runID uuid.UUID, guildID snowflake.ID, runDir string) error {
	_, err := db.pool.Exec(ctx, insertRunQuery, runID, int64(guildID), runDir)
	return err
}

func (db *DB) FinishRun(ctx context.Context, runID uuid.UUID, channels int, messages int64) error {
	_, err := db.pool.Exec(ctx, finishRunQuery, runID, channels, messages)
	return err
}

func (db *DB) RecordChannel(ctx context.Context, runID uuid.UUID, channelID snowflake.ID, name string, messages int64) error {
	_, err := db.pool.Exec(ctx, upsertChannelQuery, runID, int64(channelID), name, messages)
	return err
}
