// Package sqlstore implements world.Store on SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"voxelrealm.ai/internal/sim/world"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ world.Store = (*Store)(nil)

// Open creates or opens the database at path. Every transaction takes the
// write lock up front and the pool holds a single connection.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE COLLATE NOCASE,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'player',
			password_hash TEXT NOT NULL,
			password_salt TEXT NOT NULL,
			is_banned INTEGER NOT NULL DEFAULT 0,
			is_locked INTEGER NOT NULL DEFAULT 0,
			failed_logins INTEGER NOT NULL DEFAULT 0,
			is_online INTEGER NOT NULL DEFAULT 0,
			last_ip TEXT,
			last_login_at TEXT,
			last_x REAL,
			last_y REAL,
			last_z REAL,
			last_character_id INTEGER,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS worlds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			seed TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			view_distance INTEGER NOT NULL DEFAULT 6,
			fog_enabled INTEGER NOT NULL DEFAULT 1,
			fog_mode TEXT NOT NULL DEFAULT 'linear',
			fog_color TEXT NOT NULL DEFAULT '#9fb8d0',
			fog_near REAL NOT NULL DEFAULT 24,
			fog_far REAL NOT NULL DEFAULT 96,
			fog_density REAL NOT NULL DEFAULT 0.02,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS world_terrain (
			world_id INTEGER PRIMARY KEY REFERENCES worlds(id) ON DELETE CASCADE,
			config_json TEXT NOT NULL,
			cells_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			item_type TEXT NOT NULL,
			rarity TEXT NOT NULL DEFAULT '',
			max_stack INTEGER NOT NULL,
			icon_path TEXT NOT NULL DEFAULT '',
			model_path TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			properties_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS decor_assets (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			model_path TEXT NOT NULL,
			icon_path TEXT NOT NULL DEFAULT '',
			biome TEXT NOT NULL DEFAULT '',
			target_count INTEGER NOT NULL,
			min_spacing REAL NOT NULL,
			model_scale REAL NOT NULL,
			yaw_random INTEGER NOT NULL,
			is_collectable INTEGER NOT NULL,
			respawn_seconds INTEGER NOT NULL,
			item_code TEXT NOT NULL DEFAULT '',
			collider_json TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS decor_asset_drops (
			asset_code TEXT NOT NULL REFERENCES decor_assets(code) ON DELETE CASCADE,
			item_code TEXT NOT NULL,
			drop_chance_pct REAL NOT NULL,
			qty_min INTEGER NOT NULL,
			qty_max INTEGER NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (asset_code, item_code)
		);`,
		`CREATE TABLE IF NOT EXISTS world_decor_state (
			world_id INTEGER PRIMARY KEY REFERENCES worlds(id) ON DELETE CASCADE,
			state_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS world_voxel_chunks (
			world_id INTEGER NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (world_id, cx, cz)
		);`,
		`CREATE TABLE IF NOT EXISTS inventory_slots (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			slot_index INTEGER NOT NULL,
			item_code TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			PRIMARY KEY (user_id, slot_index)
		);`,
		`CREATE TABLE IF NOT EXISTS characters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			slot_index INTEGER NOT NULL,
			name TEXT NOT NULL,
			model_key TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (user_id, slot_index),
			UNIQUE (user_id, name COLLATE NOCASE)
		);`,
		`CREATE TABLE IF NOT EXISTS admin_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_id INTEGER NOT NULL DEFAULT 0,
			action TEXT NOT NULL,
			target TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_admin_actions_created ON admin_actions(created_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) stamp() string { return s.now().UTC().Format(time.RFC3339Nano) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what string) error {
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", what, world.ErrNotFound)
	}
	return err
}

// inTx runs fn in one transaction and commits when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO meta(key,value) VALUES(?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	return v, notFound(err, "meta "+key)
}

func (s *Store) LogAdminAction(ctx context.Context, a world.AdminAction) error {
	at := a.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO admin_actions(actor_id,action,target,detail,created_at) VALUES(?,?,?,?,?)`,
		a.ActorID, a.Action, a.Target, a.Detail, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log admin action: %w", err)
	}
	return nil
}

// AdminActions returns the newest admin actions first.
func (s *Store) AdminActions(ctx context.Context, limit int) ([]world.AdminAction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT actor_id,action,target,detail,created_at FROM admin_actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.AdminAction
	for rows.Next() {
		var (
			a  world.AdminAction
			at string
		)
		if err := rows.Scan(&a.ActorID, &a.Action, &a.Target, &a.Detail, &at); err != nil {
			return nil, err
		}
		a.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, a)
	}
	return out, rows.Err()
}
