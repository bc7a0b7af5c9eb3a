package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于SQLite的存储，除键值对外还记录每次测量的结果摘要
type SQLiteStore struct {
	db *sql.DB
}

// RunRecord 一次测量结束时的结果摘要
type RunRecord struct {
	EndpointID string
	Address    string
	StartedAt  time.Time
	EndedAt    time.Time
	Stopped    bool
	Samples    int
	Timeouts   int
	AvgMs      float64 // NaN 表示没有延迟样本
	MinMs      float64
	MaxMs      float64
	LossPct    float64
}

// OpenSQLite 打开（必要时创建）数据库并初始化表结构
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA synchronous=NORMAL")

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS kv (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        endpoint_id TEXT NOT NULL,
        address TEXT NOT NULL,
        started_at DATETIME NOT NULL,
        ended_at DATETIME NOT NULL,
        stopped BOOLEAN NOT NULL,
        samples INTEGER NOT NULL,
        timeouts INTEGER NOT NULL,
        avg_ms REAL,
        min_ms REAL,
        max_ms REAL,
        loss_pct REAL NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_runs_endpoint ON runs(endpoint_id, ended_at);
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema init failed: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get 实现core.Store接口，值以JSON保存
func (s *SQLiteStore) Get(key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// Set 实现core.Store接口
func (s *SQLiteStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	_, err = s.db.Exec(`
        INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}
	return nil
}

// RecordRun 保存一次测量的结果摘要
func (s *SQLiteStore) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO runs (endpoint_id, address, started_at, ended_at, stopped,
            samples, timeouts, avg_ms, min_ms, max_ms, loss_pct)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EndpointID, r.Address, r.StartedAt.UTC(), r.EndedAt.UTC(), r.Stopped,
		r.Samples, r.Timeouts, nullable(r.AvgMs), nullable(r.MinMs), nullable(r.MaxMs), r.LossPct)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns 返回某个目标最近的测量结果，最新的在前
func (s *SQLiteStore) RecentRuns(ctx context.Context, endpointID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT endpoint_id, address, started_at, ended_at, stopped,
            samples, timeouts, avg_ms, min_ms, max_ms, loss_pct
        FROM runs WHERE endpoint_id = ?
        ORDER BY ended_at DESC, id DESC LIMIT ?`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r             RunRecord
			avg, min, max sql.NullFloat64
		)
		if err := rows.Scan(&r.EndpointID, &r.Address, &r.StartedAt, &r.EndedAt, &r.Stopped,
			&r.Samples, &r.Timeouts, &avg, &min, &max, &r.LossPct); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.AvgMs, r.MinMs, r.MaxMs = fromNullable(avg), fromNullable(min), fromNullable(max)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
