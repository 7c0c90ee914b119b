package world

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/fall"
)

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func horizontal(a, b mgl64.Vec3) float64 {
	return math.Hypot(a.X()-b.X(), a.Z()-b.Z())
}

func vec3(v mgl64.Vec3) protocol.Vec3 { return protocol.Vec3{X: v.X(), Y: v.Y(), Z: v.Z()} }

func (s *Server) handleGetActiveWorld(ctx context.Context, c *client, req protocol.Request) (any, error) {
	rec, err := s.store.ActiveWorld(ctx)
	if isNotFound(err) {
		return nil, rejected("no active world")
	}
	if err != nil {
		return nil, storageErr("active world", err)
	}
	return protocol.ActiveWorldResp{OK: true, World: worldView(rec)}, nil
}

func (s *Server) resolveWorld(ctx context.Context, name string) (WorldRecord, error) {
	var (
		rec WorldRecord
		err error
	)
	if name = strings.TrimSpace(name); name == "" {
		rec, err = s.store.ActiveWorld(ctx)
	} else {
		rec, err = s.store.WorldByName(ctx, name)
	}
	if isNotFound(err) {
		return WorldRecord{}, rejected("world not found")
	}
	if err != nil {
		return WorldRecord{}, storageErr("load world", err)
	}
	return rec, nil
}

func (s *Server) handleEnterWorld(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.EnterWorldReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	sess := c.sess
	if sess.CharacterID == 0 {
		return nil, rejected("select a character first")
	}
	rec, err := s.resolveWorld(ctx, p.WorldName)
	if err != nil {
		return nil, err
	}
	w, err := s.loadWorld(ctx, rec)
	if err != nil {
		return nil, err
	}
	grid, err := s.store.Inventory(ctx, sess.UserID, s.layout)
	if err != nil {
		s.evictIfEmpty(rec.ID)
		return nil, storageErr("load inventory", err)
	}
	items, err := s.store.Items(ctx, grid.Codes())
	if err != nil {
		s.evictIfEmpty(rec.ID)
		return nil, storageErr("load items", err)
	}

	if sess.InWorld {
		prevID, prevName := sess.WorldID, sess.WorldName
		sess.leaveWorld()
		s.broadcastToWorld(prevName, protocol.EvPlayerLeft, protocol.UserPresenceEvent{UserID: sess.UserID, Username: sess.Username}, c.conn.ID)
		if prevID != rec.ID {
			s.evictIfEmpty(prevID)
		}
	}

	now := s.now()
	pos := s.spawnPoint(w, sess)
	sess.WorldID, sess.WorldName, sess.InWorld = rec.ID, rec.Name, true
	sess.Pos = pos
	sess.lastPos = nil
	sess.Anim = AnimIdle
	sess.Fall.Reset(pos.Y(), now, w.fallConfig(s))
	if sess.HP <= 0 {
		sess.Fall.Kill()
	}

	s.maintainWorld(ctx, w, true)

	players := []protocol.PlayerView{}
	for _, peer := range s.worldPeers(rec.ID) {
		if peer != sess {
			players = append(players, playerView(peer, now))
		}
	}
	me := playerView(sess, now)
	s.broadcastToWorld(rec.Name, protocol.EvPlayerJoined, me, c.conn.ID)
	s.log.Printf("enter world=%s user=%s pos=(%.1f,%.1f,%.1f)", rec.Name, sess.Username, pos.X(), pos.Y(), pos.Z())

	return protocol.EnterWorldResp{
		OK:        true,
		World:     worldView(rec),
		Terrain:   w.terrainView(),
		Player:    me,
		Players:   players,
		Decor:     decorView(w.decor, w.assets),
		Loot:      lootViews(w.loot.List()),
		Voxels:    w.chunkViews(),
		Inventory: inventoryView(grid, items),
	}, nil
}

func (w *worldState) spawnHint() mgl64.Vec3 {
	h := w.cfg().SpawnHint
	return mgl64.Vec3{h[0], h[1], h[2]}
}

// spawnPoint prefers the last persisted position when it still stands on
// solid ground, otherwise searches near the world's spawn hint.
func (s *Server) spawnPoint(w *worldState, sess *Session) mgl64.Vec3 {
	if p := sess.lastPos; p != nil && finite(p[0], p[1], p[2]) {
		pos := mgl64.Vec3{p[0], p[1], p[2]}
		x, z := int(math.Floor(pos.X())), int(math.Floor(pos.Z()))
		y := int(math.Floor(pos.Y()))
		if top, ok := w.voxels.TopSolid(x, z); ok && y > top && !w.voxels.Solid(x, y, z) {
			return pos
		}
	}
	return s.findRespawn(w, w.spawnHint())
}

func (s *Server) findRespawn(w *worldState, from mgl64.Vec3) mgl64.Vec3 {
	return fall.FindRespawn(w.voxels, from, w.spawnHint(), s.tun.Fall.RespawnRingRadius, s.tun.Fall.Headroom)
}

func (s *Server) handleMove(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.MoveReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if !finite(p.X, p.Y, p.Z, p.Yaw) {
		return nil, badRequest("position must be finite")
	}
	sess := c.sess
	w := s.sessionWorld(sess)
	next := mgl64.Vec3{p.X, p.Y, p.Z}
	if step := s.tun.Player.MaxMoveStep; step > 0 && horizontal(sess.Pos, next) > step {
		return nil, rejected("move too far")
	}
	anim := p.Anim
	if anim == "" {
		anim = sess.Anim
	}
	if !validAnims[anim] {
		anim = AnimIdle
	}

	now := s.now()
	cfg := w.fallConfig(s)
	sess.Pos, sess.Yaw, sess.Anim = next, p.Yaw, anim
	out := sess.Fall.Observe(next.Y(), now, sess.HP, sess.MaxHP, cfg)

	resp := protocol.MoveResp{OK: true}
	if out.VoidReturn {
		pos := s.findRespawn(w, next)
		sess.Pos = pos
		sess.Fall.Reset(pos.Y(), now, cfg)
		v := vec3(pos)
		resp.Respawn = &v
	}
	s.broadcastToWorld(sess.WorldName, protocol.EvPlayerMoved, protocol.PlayerMovedEvent{
		UserID: sess.UserID, X: sess.Pos.X(), Y: sess.Pos.Y(), Z: sess.Pos.Z(), Yaw: sess.Yaw, Anim: sess.Anim,
	}, c.conn.ID)

	if out.Resolved && (out.Damage > 0 || out.Died) {
		sess.HP = out.HP
		resp.Damage, resp.Distance = out.Damage, out.Distance
		s.broadcastToWorld(sess.WorldName, protocol.EvPlayerHP, protocol.PlayerHPEvent{
			UserID: sess.UserID, HP: sess.HP, MaxHP: sess.MaxHP, Damage: out.Damage, Reason: out.Reason,
		}, "")
	}
	if out.Died {
		sess.DeathReason = out.Reason
		resp.Dead, resp.Reason = true, out.Reason
		s.broadcastToWorld(sess.WorldName, protocol.EvPlayerDied, protocol.PlayerDiedEvent{UserID: sess.UserID, Reason: out.Reason}, "")
		s.log.Printf("death user=%s reason=%s distance=%.1f", sess.Username, out.Reason, out.Distance)
	}
	resp.HP, resp.MaxHP = sess.HP, sess.MaxHP

	s.maintainWorld(ctx, w, false)
	return resp, nil
}

func (s *Server) handleRespawn(ctx context.Context, c *client, req protocol.Request) (any, error) {
	sess := c.sess
	if !sess.Dead() {
		return nil, rejected("not dead")
	}
	w := s.sessionWorld(sess)
	now := s.now()
	pos := s.findRespawn(w, sess.Pos)
	sess.Pos = pos
	sess.HP = sess.MaxHP
	sess.DeathReason = ""
	sess.Anim = AnimIdle
	sess.Fall.Reset(pos.Y(), now, w.fallConfig(s))

	view := playerView(sess, now)
	s.broadcastToWorld(sess.WorldName, protocol.EvPlayerRespawned, view, c.conn.ID)
	return protocol.RespawnResp{OK: true, Player: view}, nil
}

func (s *Server) handleSetEmotion(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.EmotionReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	emotion := strings.ToLower(strings.TrimSpace(p.Emotion))
	if !validEmotions[emotion] {
		return nil, badRequest("unknown emotion")
	}
	d := min(max(p.DurationMS, 0), maxEmotionMS)
	sess := c.sess
	sess.Emotion = emotion
	sess.EmotionUntil = time.Time{}
	if d > 0 {
		sess.EmotionUntil = s.now().Add(time.Duration(d) * time.Millisecond)
	}
	s.broadcastToWorld(sess.WorldName, protocol.EvPlayerEmotion, protocol.PlayerEmotionEvent{UserID: sess.UserID, Emotion: emotion, DurationMS: d}, c.conn.ID)
	return protocol.EmotionResp{OK: true, Emotion: emotion, DurationMS: d}, nil
}

func (s *Server) handleSetClass(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.ClassReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	class := strings.ToLower(strings.TrimSpace(p.Class))
	if !validClasses[class] {
		return nil, badRequest("unknown class")
	}
	sess := c.sess
	sess.Class = class
	s.broadcastToWorld(sess.WorldName, protocol.EvPlayerClassChanged, protocol.ClassChangedEvent{UserID: sess.UserID, Class: class}, c.conn.ID)
	return protocol.ClassResp{OK: true, Class: class}, nil
}
