package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/terrain"
	"voxelrealm.ai/internal/sim/voxel"
	"voxelrealm.ai/internal/sim/world"
)

const worldCols = `id,name,seed,is_active,view_distance,fog_enabled,fog_mode,fog_color,fog_near,fog_far,fog_density`

type scanner interface{ Scan(dest ...any) error }

func scanWorld(r scanner) (world.WorldRecord, error) {
	var (
		w      world.WorldRecord
		active int
		fogOn  int
	)
	err := r.Scan(&w.ID, &w.Name, &w.Seed, &active, &w.ViewDistance, &fogOn,
		&w.FogMode, &w.FogColor, &w.FogNear, &w.FogFar, &w.FogDensity)
	w.Active = active != 0
	w.FogEnabled = fogOn != 0
	return w, err
}

func (s *Store) ActiveWorld(ctx context.Context) (world.WorldRecord, error) {
	w, err := scanWorld(s.db.QueryRowContext(ctx, `SELECT `+worldCols+` FROM worlds WHERE is_active=1 ORDER BY id LIMIT 1`))
	return w, notFound(err, "active world")
}

func (s *Store) WorldByName(ctx context.Context, name string) (world.WorldRecord, error) {
	w, err := scanWorld(s.db.QueryRowContext(ctx, `SELECT `+worldCols+` FROM worlds WHERE name=?`, name))
	return w, notFound(err, "world "+name)
}

// EnsureWorld creates the named world if needed, marks it as the only active
// world and stores cfg as its terrain when none is stored yet. An existing
// world keeps its seed.
func (s *Store) EnsureWorld(ctx context.Context, name, seed string, cfg terrain.Config) (world.WorldRecord, error) {
	cfgJSON, err := json.Marshal(terrain.Normalize(cfg))
	if err != nil {
		return world.WorldRecord{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO worlds(name,seed,created_at) VALUES(?,?,?)
			ON CONFLICT(name) DO NOTHING`, name, seed, s.stamp()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE worlds SET is_active=(name=?)`, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO world_terrain(world_id,config_json)
			SELECT id,? FROM worlds WHERE name=?
			ON CONFLICT(world_id) DO NOTHING`, string(cfgJSON), name)
		return err
	})
	if err != nil {
		return world.WorldRecord{}, fmt.Errorf("ensure world %q: %w", name, err)
	}
	return s.WorldByName(ctx, name)
}

func (s *Store) WorldTerrain(ctx context.Context, worldID int64) (world.TerrainRecord, error) {
	var (
		cfgJSON   string
		cellsJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT config_json,cells_json FROM world_terrain WHERE world_id=?`, worldID).
		Scan(&cfgJSON, &cellsJSON)
	if err != nil {
		return world.TerrainRecord{}, notFound(err, fmt.Sprintf("terrain of world %d", worldID))
	}
	rec := world.TerrainRecord{Config: terrain.Default()}
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return world.TerrainRecord{}, fmt.Errorf("terrain config of world %d: %w", worldID, err)
	}
	rec.Config = terrain.Normalize(rec.Config)
	if cellsJSON.Valid && cellsJSON.String != "" {
		if err := json.Unmarshal([]byte(cellsJSON.String), &rec.Cells); err != nil {
			return world.TerrainRecord{}, fmt.Errorf("terrain cells of world %d: %w", worldID, err)
		}
	}
	return rec, nil
}

func (s *Store) DecorState(ctx context.Context, worldID int64) (decor.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM world_decor_state WHERE world_id=?`, worldID).Scan(&raw)
	if err != nil {
		return decor.State{}, notFound(err, fmt.Sprintf("decor state of world %d", worldID))
	}
	var st decor.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return decor.State{}, fmt.Errorf("decor state of world %d: %w", worldID, err)
	}
	return st, nil
}

func (s *Store) SaveDecorState(ctx context.Context, worldID int64, st decor.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO world_decor_state(world_id,state_json,updated_at) VALUES(?,?,?)
		ON CONFLICT(world_id) DO UPDATE SET state_json=excluded.state_json,updated_at=excluded.updated_at`,
		worldID, string(raw), s.stamp())
	if err != nil {
		return fmt.Errorf("save decor state: %w", err)
	}
	return nil
}

func (s *Store) VoxelChunks(ctx context.Context, worldID int64) ([]voxel.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cx,cz,data FROM world_voxel_chunks WHERE world_id=? ORDER BY cx,cz`, worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []voxel.ChunkRecord
	for rows.Next() {
		var (
			rec  voxel.ChunkRecord
			blob []byte
		)
		if err := rows.Scan(&rec.Key.CX, &rec.Key.CZ, &blob); err != nil {
			return nil, err
		}
		ovs, err := voxel.DecodeChunk(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d,%d: %w", rec.Key.CX, rec.Key.CZ, err)
		}
		rec.Overrides = ovs
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveVoxelChunk(ctx context.Context, worldID int64, key voxel.ChunkKey, ovs []voxel.Override) error {
	if len(ovs) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM world_voxel_chunks WHERE world_id=? AND cx=? AND cz=?`,
			worldID, key.CX, key.CZ)
		return err
	}
	blob, err := voxel.EncodeChunk(ovs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO world_voxel_chunks(world_id,cx,cz,data,updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(world_id,cx,cz) DO UPDATE SET data=excluded.data,updated_at=excluded.updated_at`,
		worldID, key.CX, key.CZ, blob, s.stamp())
	if err != nil {
		return fmt.Errorf("save chunk %d,%d: %w", key.CX, key.CZ, err)
	}
	return nil
}
