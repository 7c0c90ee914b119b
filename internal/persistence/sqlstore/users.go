package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"voxelrealm.ai/internal/sim/world"
)

func (s *Store) CreateUser(ctx context.Context, u world.NewUser) (int64, error) {
	role := u.Role
	if role == "" {
		role = world.RolePlayer
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username,full_name,email,role,password_hash,password_salt,created_at)
		VALUES(?,?,?,?,?,?,?)`,
		strings.TrimSpace(u.Username), u.FullName, u.Email, role, u.PasswordHash, u.PasswordSalt, s.stamp())
	if isUnique(err) {
		return 0, fmt.Errorf("user %q: %w", u.Username, world.ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UserByUsername(ctx context.Context, username string) (world.User, error) {
	var (
		u          world.User
		banned     int
		locked     int
		lx, ly, lz sql.NullFloat64
		lastChar   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id,username,full_name,email,role,password_hash,password_salt,
		is_banned,is_locked,failed_logins,last_x,last_y,last_z,last_character_id
		FROM users WHERE username=?`, strings.TrimSpace(username)).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.PasswordHash, &u.PasswordSalt,
			&banned, &locked, &u.FailedLogins, &lx, &ly, &lz, &lastChar)
	if err != nil {
		return world.User{}, notFound(err, "user "+username)
	}
	u.Banned = banned != 0
	u.Locked = locked != 0
	if lx.Valid && ly.Valid && lz.Valid {
		u.LastPos = &[3]float64{lx.Float64, ly.Float64, lz.Float64}
	}
	if lastChar.Valid {
		u.LastCharacterID = lastChar.Int64
	}
	return u, nil
}

func (s *Store) updateUser(ctx context.Context, userID int64, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, append(args, userID)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, world.ErrNotFound)
	}
	return nil
}

func (s *Store) RecordLoginFailure(ctx context.Context, userID int64) error {
	return s.updateUser(ctx, userID, `UPDATE users SET failed_logins=failed_logins+1 WHERE id=?`)
}

func (s *Store) RecordLogin(ctx context.Context, userID int64, remoteAddr string, at time.Time) error {
	return s.updateUser(ctx, userID, `UPDATE users SET failed_logins=0,is_online=1,last_ip=?,last_login_at=? WHERE id=?`,
		remoteAddr, at.UTC().Format(time.RFC3339Nano))
}

func (s *Store) SetOffline(ctx context.Context, userID int64, lastPos *[3]float64) error {
	if lastPos == nil {
		return s.updateUser(ctx, userID, `UPDATE users SET is_online=0 WHERE id=?`)
	}
	return s.updateUser(ctx, userID, `UPDATE users SET is_online=0,last_x=?,last_y=?,last_z=? WHERE id=?`,
		lastPos[0], lastPos[1], lastPos[2])
}

func (s *Store) SetLastCharacter(ctx context.Context, userID, characterID int64) error {
	return s.updateUser(ctx, userID, `UPDATE users SET last_character_id=? WHERE id=?`, characterID)
}

// SetRole changes a user's role; it backs the admin CLI.
func (s *Store) SetRole(ctx context.Context, username, role string) error {
	switch role {
	case world.RolePlayer, world.RoleModerator, world.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role=? WHERE username=?`, role, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q: %w", username, world.ErrNotFound)
	}
	return nil
}

// SetBanned toggles the ban flag and clears the lock on unban.
func (s *Store) SetBanned(ctx context.Context, username string, banned bool) error {
	q := `UPDATE users SET is_banned=? WHERE username=?`
	if !banned {
		q = `UPDATE users SET is_banned=?,is_locked=0,failed_logins=0 WHERE username=?`
	}
	res, err := s.db.ExecContext(ctx, q, boolInt(banned), username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q: %w", username, world.ErrNotFound)
	}
	return nil
}

// ResetOnline clears online flags left behind by an unclean shutdown.
func (s *Store) ResetOnline(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_online=0 WHERE is_online=1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
