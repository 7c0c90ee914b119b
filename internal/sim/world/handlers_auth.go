package world

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"voxelrealm.ai/internal/protocol"
)

func (s *Server) handlePing(ctx context.Context, c *client, req protocol.Request) (any, error) {
	return protocol.PongResp{OK: true, ServerTime: s.now().UnixMilli(), Version: protocol.Version}, nil
}

func lengthBetween(v string, lo, hi int) bool {
	n := utf8.RuneCountInString(v)
	return n >= lo && n <= hi
}

func (s *Server) handleRegister(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.RegisterReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	p.Username = strings.TrimSpace(p.Username)
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(p.Email)
	switch {
	case !lengthBetween(p.Username, 3, 32):
		return nil, badRequest("username must be 3-32 characters")
	case strings.ContainsAny(p.Username, " \t\r\n"):
		return nil, badRequest("username must not contain spaces")
	case !lengthBetween(p.FullName, 3, 120):
		return nil, badRequest("full name must be 3-120 characters")
	case !lengthBetween(p.Password, 6, 128):
		return nil, badRequest("password must be 6-128 characters")
	case len(p.Email) > 190:
		return nil, badRequest("email too long")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return nil, badRequest("invalid email")
		}
	}
	if s.creds == nil {
		return nil, storageErr("register", errors.New("no credential hasher configured"))
	}
	hash, salt, err := s.creds.Hash(p.Password)
	if err != nil {
		return nil, storageErr("hash password", err)
	}
	id, err := s.store.CreateUser(ctx, NewUser{
		Username:     p.Username,
		FullName:     p.FullName,
		Email:        p.Email,
		Role:         RolePlayer,
		PasswordHash: hash,
		PasswordSalt: salt,
	})
	if errors.Is(err, ErrDuplicate) {
		return nil, conflict("username already taken")
	}
	if err != nil {
		return nil, storageErr("create user", err)
	}
	s.log.Printf("registered user=%s id=%d", p.Username, id)
	return protocol.RegisterResp{OK: true, UserID: id}, nil
}

func (s *Server) handleLogin(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.LoginReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" || p.Password == "" {
		return nil, badRequest("username and password required")
	}
	if c.sess != nil {
		return nil, conflict("already logged in")
	}
	u, err := s.store.UserByUsername(ctx, p.Username)
	if isNotFound(err) {
		return nil, rejected("invalid credentials")
	}
	if err != nil {
		return nil, storageErr("load user", err)
	}
	switch {
	case u.Banned:
		return nil, rejected("account banned")
	case u.Locked:
		return nil, rejected("account locked")
	}
	if s.creds == nil || !s.creds.Verify(p.Password, u.PasswordHash, u.PasswordSalt) {
		if err := s.store.RecordLoginFailure(ctx, u.ID); err != nil {
			s.log.Printf("record login failure user=%s: %v", u.Username, err)
		}
		return nil, rejected("invalid credentials")
	}
	if err := s.store.RecordLogin(ctx, u.ID, c.conn.RemoteAddr, s.now()); err != nil {
		return nil, storageErr("record login", err)
	}

	// A second login replaces the older session.
	if prev := s.sessionByUserID(u.ID); prev != nil && prev != c {
		s.kick(ctx, prev, "logged in elsewhere")
	}

	sess := newSession(c.conn.ID, c.conn.RemoteAddr, u, s.tun.Player.MaxHP, s.tun.Chat.RatePerSec, s.tun.Chat.Burst)
	if u.LastCharacterID > 0 {
		if ch, err := s.store.Character(ctx, u.ID, u.LastCharacterID); err == nil {
			sess.selectCharacter(ch)
		}
	}
	c.sess = sess
	s.broadcastToAll(protocol.EvUserOnline, protocol.UserPresenceEvent{UserID: u.ID, Username: u.Username}, c.conn.ID)
	s.log.Printf("login user=%s conn=%s", u.Username, c.conn.ID)
	return protocol.LoginResp{OK: true, User: userView(u)}, nil
}

func (s *Server) handleLogout(ctx context.Context, c *client, req protocol.Request) (any, error) {
	name := c.sess.Username
	s.endSession(ctx, c)
	s.log.Printf("logout user=%s conn=%s", name, c.conn.ID)
	return protocol.OKResp{OK: true}, nil
}
