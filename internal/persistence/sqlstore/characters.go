package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"voxelrealm.ai/internal/sim/world"
)

func scanCharacter(r scanner) (world.Character, error) {
	var (
		c  world.Character
		at string
	)
	if err := r.Scan(&c.ID, &c.UserID, &c.SlotIndex, &c.Name, &c.ModelKey, &at); err != nil {
		return c, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, at)
	return c, nil
}

func (s *Store) Characters(ctx context.Context, userID int64) ([]world.Character, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,user_id,slot_index,name,model_key,created_at
		FROM characters WHERE user_id=? ORDER BY slot_index`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Character(ctx context.Context, userID, characterID int64) (world.Character, error) {
	c, err := scanCharacter(s.db.QueryRowContext(ctx, `SELECT id,user_id,slot_index,name,model_key,created_at
		FROM characters WHERE user_id=? AND id=?`, userID, characterID))
	return c, notFound(err, fmt.Sprintf("character %d", characterID))
}

// CreateCharacter places the character in the lowest free slot.
func (s *Store) CreateCharacter(ctx context.Context, userID int64, name, modelKey string, maxSlots int) (world.Character, error) {
	name = strings.TrimSpace(name)
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT slot_index FROM characters WHERE user_id=?`, userID)
		if err != nil {
			return err
		}
		used := map[int]bool{}
		for rows.Next() {
			var i int
			if err := rows.Scan(&i); err != nil {
				rows.Close()
				return err
			}
			used[i] = true
		}
		rows.Close()
		slot := -1
		for i := 0; i < maxSlots; i++ {
			if !used[i] {
				slot = i
				break
			}
		}
		if slot < 0 {
			return world.ErrSlotsFull
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO characters(user_id,slot_index,name,model_key,created_at) VALUES(?,?,?,?,?)`,
			userID, slot, name, modelKey, s.stamp())
		if isUnique(err) {
			return fmt.Errorf("character %q: %w", name, world.ErrDuplicate)
		}
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return world.Character{}, err
	}
	return s.Character(ctx, userID, id)
}

// DeleteCharacter also clears the user's last-character pointer when it
// referenced the deleted row.
func (s *Store) DeleteCharacter(ctx context.Context, userID, characterID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM characters WHERE user_id=? AND id=?`, userID, characterID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("character %d: %w", characterID, world.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET last_character_id=NULL WHERE id=? AND last_character_id=?`, userID, characterID)
		return err
	})
}
