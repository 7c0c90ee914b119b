package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"voxelrealm.ai/internal/sim/catalogs"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
)

const (
	metaItemsDigest  = "catalog.items.sha256"
	metaAssetsDigest = "catalog.decor_assets.sha256"
)

const itemCols = `code,name,item_type,rarity,max_stack,icon_path,model_path,is_active,properties_json`

func scanItem(r scanner) (inventory.Item, error) {
	var (
		it     inventory.Item
		active int
		props  sql.NullString
	)
	if err := r.Scan(&it.Code, &it.Name, &it.Type, &it.Rarity, &it.MaxStack, &it.IconPath, &it.ModelPath, &active, &props); err != nil {
		return it, err
	}
	it.Active = active != 0
	if props.Valid && props.String != "" {
		it.Properties = json.RawMessage(props.String)
	}
	return it, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Items returns the active items among codes keyed by code.
func (s *Store) Items(ctx context.Context, codes []string) (map[string]inventory.Item, error) {
	return itemsIn(ctx, s.db, codes)
}

func itemsIn(ctx context.Context, q querier, codes []string) (map[string]inventory.Item, error) {
	out := map[string]inventory.Item{}
	if len(codes) == 0 {
		return out, nil
	}
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
	rows, err := q.QueryContext(ctx, `SELECT `+itemCols+` FROM items WHERE is_active=1 AND code IN (`+marks+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.Code] = it
	}
	return out, rows.Err()
}

func (s *Store) DecorAssets(ctx context.Context) ([]decor.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code,name,model_path,icon_path,biome,target_count,min_spacing,model_scale,
		yaw_random,is_collectable,respawn_seconds,item_code,collider_json
		FROM decor_assets WHERE is_active=1 ORDER BY sort_order,code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decor.Asset
	for rows.Next() {
		var (
			a            decor.Asset
			yaw, collect int
			collider     string
		)
		if err := rows.Scan(&a.Code, &a.Name, &a.ModelPath, &a.IconPath, &a.Biome, &a.TargetCount, &a.MinSpacing, &a.Scale,
			&yaw, &collect, &a.RespawnSeconds, &a.ItemCode, &collider); err != nil {
			return nil, err
		}
		a.YawRandom = yaw != 0
		a.Collectable = collect != 0
		a.Active = true
		if err := json.Unmarshal([]byte(collider), &a.Collider); err != nil {
			return nil, fmt.Errorf("decor asset %s collider: %w", a.Code, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DecorDrops(ctx context.Context, assetCode string) ([]decor.DropRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset_code,item_code,drop_chance_pct,qty_min,qty_max,sort_order
		FROM decor_asset_drops WHERE asset_code=? AND is_active=1 ORDER BY sort_order,item_code`, assetCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []decor.DropRow
	for rows.Next() {
		var d decor.DropRow
		if err := rows.Scan(&d.AssetCode, &d.ItemCode, &d.Chance, &d.QtyMin, &d.QtyMax, &d.Priority); err != nil {
			return nil, err
		}
		d.Active = true
		out = append(out, d)
	}
	return out, rows.Err()
}

// SeedCatalogs upserts the item and decor catalogs. A catalog whose digest
// matches the one recorded at the last seed is skipped. It reports whether
// anything was written.
func (s *Store) SeedCatalogs(ctx context.Context, c *catalogs.Catalogs) (bool, error) {
	itemsDigest, _ := s.Meta(ctx, metaItemsDigest)
	assetsDigest, _ := s.Meta(ctx, metaAssetsDigest)
	seedItems := itemsDigest != c.ItemsDigest
	seedAssets := assetsDigest != c.AssetsDigest
	if !seedItems && !seedAssets {
		return false, nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if seedItems {
			if err := upsertItems(ctx, tx, c.Items); err != nil {
				return err
			}
			if err := s.setMeta(ctx, tx, metaItemsDigest, c.ItemsDigest); err != nil {
				return err
			}
		}
		if seedAssets {
			if err := upsertAssets(ctx, tx, c); err != nil {
				return err
			}
			if err := s.setMeta(ctx, tx, metaAssetsDigest, c.AssetsDigest); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed catalogs: %w", err)
	}
	return true, nil
}

func upsertItems(ctx context.Context, tx *sql.Tx, items []inventory.Item) error {
	for _, it := range items {
		var props any
		if len(it.Properties) > 0 {
			props = string(it.Properties)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO items(`+itemCols+`) VALUES(?,?,?,?,?,?,?,?,?)
			ON CONFLICT(code) DO UPDATE SET name=excluded.name,item_type=excluded.item_type,rarity=excluded.rarity,
			max_stack=excluded.max_stack,icon_path=excluded.icon_path,model_path=excluded.model_path,
			is_active=excluded.is_active,properties_json=excluded.properties_json`,
			it.Code, it.Name, it.Type, it.Rarity, it.MaxStack, it.IconPath, it.ModelPath, boolInt(it.Active), props)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.Code, err)
		}
	}
	return nil
}

// upsertAssets rewrites the drop table wholesale so that drops removed from
// the catalog disappear.
func upsertAssets(ctx context.Context, tx *sql.Tx, c *catalogs.Catalogs) error {
	for i, a := range c.Assets {
		collider, err := json.Marshal(a.Collider)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO decor_assets(code,name,model_path,icon_path,biome,target_count,min_spacing,
			model_scale,yaw_random,is_collectable,respawn_seconds,item_code,collider_json,is_active,sort_order)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(code) DO UPDATE SET name=excluded.name,model_path=excluded.model_path,icon_path=excluded.icon_path,
			biome=excluded.biome,target_count=excluded.target_count,min_spacing=excluded.min_spacing,
			model_scale=excluded.model_scale,yaw_random=excluded.yaw_random,is_collectable=excluded.is_collectable,
			respawn_seconds=excluded.respawn_seconds,item_code=excluded.item_code,collider_json=excluded.collider_json,
			is_active=excluded.is_active,sort_order=excluded.sort_order`,
			a.Code, a.Name, a.ModelPath, a.IconPath, a.Biome, a.TargetCount, a.MinSpacing, a.Scale,
			boolInt(a.YawRandom), boolInt(a.Collectable), a.RespawnSeconds, a.ItemCode, string(collider), boolInt(a.Active), i)
		if err != nil {
			return fmt.Errorf("decor asset %s: %w", a.Code, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM decor_asset_drops`); err != nil {
		return err
	}
	for _, d := range c.Drops {
		_, err := tx.ExecContext(ctx, `INSERT INTO decor_asset_drops(asset_code,item_code,drop_chance_pct,qty_min,qty_max,sort_order,is_active)
			VALUES(?,?,?,?,?,?,?)`,
			d.AssetCode, d.ItemCode, d.Chance, d.QtyMin, d.QtyMax, d.Priority, boolInt(d.Active))
		if err != nil {
			return fmt.Errorf("drop %s/%s: %w", d.AssetCode, d.ItemCode, err)
		}
	}
	return nil
}
