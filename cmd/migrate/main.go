package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"hackathon-ai-jury/internal/config"
	pg "hackathon-ai-jury/internal/infra/db/postgres"
)

// schema is idempotent; rerunning the tool against an existing database
// is a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	job_type     TEXT NOT NULL,
	payload      JSONB,
	status       TEXT NOT NULL,
	progress     INT NOT NULL DEFAULT 0,
	stage        TEXT NOT NULL DEFAULT '',
	detail       JSONB,
	result       JSONB,
	last_error   TEXT NOT NULL DEFAULT '',
	attempts     INT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS analysis_jobs_one_active
	ON analysis_jobs (subject_id, job_type)
	WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS elimination_sessions (
	id                TEXT PRIMARY KEY,
	hackathon_id      TEXT NOT NULL,
	stages            JSONB NOT NULL,
	stage_index       INT NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	total_candidates  INT NOT NULL DEFAULT 0,
	current_candidate JSONB,
	last_error        TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	completed_at      TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS elimination_sessions_one_active
	ON elimination_sessions (hackathon_id)
	WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS elimination_outcomes (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL REFERENCES elimination_sessions(id) ON DELETE CASCADE,
	stage_index    INT NOT NULL,
	candidate_id   TEXT NOT NULL,
	candidate_name TEXT NOT NULL DEFAULT '',
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	advanced       BOOLEAN NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	evidence       JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, stage_index, candidate_id)
);`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")
}
