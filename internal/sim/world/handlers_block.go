package world

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/terrain"
	"voxelrealm.ai/internal/sim/voxel"
)

const (
	opBreak = "break"
	opPlace = "place"
)

type blockEdit struct {
	x, y, z  int
	from, to uint16
}

func (e blockEdit) change() protocol.BlockChange {
	return protocol.BlockChange{X: e.x, Y: e.y, Z: e.z, BlockID: e.to}
}

// checkEdit validates one edit against the current world and returns it
// without applying it.
func (s *Server) checkEdit(w *worldState, sess *Session, op string, x, y, z int, id uint16) (blockEdit, error) {
	if !w.voxels.InHeight(y) {
		return blockEdit{}, badRequest("y out of range")
	}
	center := mgl64.Vec3{float64(x) + 0.5, float64(y) + 0.5, float64(z) + 0.5}
	if reach := s.tun.Player.BlockReach; reach > 0 && sess.Pos.Sub(center).Len() > reach+0.5 {
		return blockEdit{}, rejected("out of reach")
	}
	cur := w.voxels.EffectiveBlock(x, y, z)
	switch op {
	case opBreak:
		if cur == terrain.Air {
			return blockEdit{}, rejected("no block there")
		}
		return blockEdit{x: x, y: y, z: z, from: cur, to: terrain.Air}, nil
	case opPlace:
		if id == terrain.Air || id > terrain.MaxBlockID {
			return blockEdit{}, badRequest("invalid block id")
		}
		if cur != terrain.Air {
			return blockEdit{}, rejected("voxel occupied")
		}
		for _, peer := range s.worldPeers(w.rec.ID) {
			if occupies(peer.Pos, x, y, z) {
				return blockEdit{}, rejected("blocked by a player")
			}
		}
		return blockEdit{x: x, y: y, z: z, from: cur, to: id}, nil
	}
	return blockEdit{}, badRequest("unknown op %q", op)
}

// occupies reports whether a standing player at pos overlaps voxel (x,y,z).
func occupies(pos mgl64.Vec3, x, y, z int) bool {
	px, pz := int(math.Floor(pos.X())), int(math.Floor(pos.Z()))
	py := int(math.Floor(pos.Y()))
	return px == x && pz == z && (y == py || y == py+1)
}

// commitEdits applies edits in memory, persists every touched chunk and
// reverts all of them when any chunk fails to save.
func (s *Server) commitEdits(ctx context.Context, w *worldState, sess *Session, edits []blockEdit) error {
	touched := map[voxel.ChunkKey]bool{}
	var order []voxel.ChunkKey
	for _, e := range edits {
		_, k := w.voxels.SetOverride(e.x, e.y, e.z, e.to)
		if !touched[k] {
			touched[k] = true
			order = append(order, k)
		}
	}
	for i, k := range order {
		err := s.store.SaveVoxelChunk(ctx, w.rec.ID, k, w.voxels.ChunkOverrides(k))
		if err == nil {
			continue
		}
		for j := len(edits) - 1; j >= 0; j-- {
			e := edits[j]
			w.voxels.SetOverride(e.x, e.y, e.z, e.from)
		}
		for _, done := range order[:i] {
			if rerr := s.store.SaveVoxelChunk(ctx, w.rec.ID, done, w.voxels.ChunkOverrides(done)); rerr != nil {
				s.log.Printf("world %s: restore chunk %d,%d: %v", w.rec.Name, done.CX, done.CZ, rerr)
			}
		}
		return storageErr("save voxel chunk", err)
	}

	changes := make([]protocol.BlockChange, 0, len(edits))
	for _, e := range edits {
		changes = append(changes, e.change())
		s.auditEdit(w, sess, e)
	}
	s.broadcastToWorld(w.rec.Name, protocol.EvBlockChanged, protocol.BlockChangedEvent{By: sess.UserID, Changes: changes}, sess.ConnID)
	return nil
}

func (s *Server) auditEdit(w *worldState, sess *Session, e blockEdit) {
	if s.audit == nil {
		return
	}
	action := opPlace
	if e.to == terrain.Air {
		action = opBreak
	}
	err := s.audit.WriteAudit(AuditEntry{
		Time:     s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		World:    w.rec.Name,
		UserID:   sess.UserID,
		Username: sess.Username,
		Action:   action,
		X:        e.x,
		Y:        e.y,
		Z:        e.z,
		From:     e.from,
		To:       e.to,
	})
	if err != nil {
		s.log.Printf("audit: %v", err)
	}
}

func (s *Server) singleEdit(ctx context.Context, c *client, req protocol.Request, op string) (any, error) {
	var p protocol.BlockReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	w := s.sessionWorld(c.sess)
	e, err := s.checkEdit(w, c.sess, op, p.X, p.Y, p.Z, p.BlockID)
	if err != nil {
		return nil, err
	}
	if err := s.commitEdits(ctx, w, c.sess, []blockEdit{e}); err != nil {
		return nil, err
	}
	return protocol.BlockResp{OK: true, Changes: []protocol.BlockChange{e.change()}}, nil
}

func (s *Server) handleBlockBreak(ctx context.Context, c *client, req protocol.Request) (any, error) {
	return s.singleEdit(ctx, c, req, opBreak)
}

func (s *Server) handleBlockPlace(ctx context.Context, c *client, req protocol.Request) (any, error) {
	return s.singleEdit(ctx, c, req, opPlace)
}

// handleBlockBatch applies all ops or none. Later ops see the effect of
// earlier ones.
func (s *Server) handleBlockBatch(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.BlockBatchReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if len(p.Ops) == 0 {
		return nil, badRequest("no ops")
	}
	if limit := s.tun.Player.BatchMaxOps; limit > 0 && len(p.Ops) > limit {
		return nil, badRequest("too many ops (max %d)", limit)
	}
	w := s.sessionWorld(c.sess)
	edits := make([]blockEdit, 0, len(p.Ops))
	undo := func() {
		for j := len(edits) - 1; j >= 0; j-- {
			e := edits[j]
			w.voxels.SetOverride(e.x, e.y, e.z, e.from)
		}
	}
	for i, op := range p.Ops {
		e, err := s.checkEdit(w, c.sess, strings.ToLower(op.Op), op.X, op.Y, op.Z, op.BlockID)
		if err != nil {
			undo()
			return nil, prefixed(fmt.Sprintf("op %d", i), err)
		}
		w.voxels.SetOverride(e.x, e.y, e.z, e.to)
		edits = append(edits, e)
	}
	// Undo the staging pass; commitEdits re-applies with rollback on failure.
	undo()
	if err := s.commitEdits(ctx, w, c.sess, edits); err != nil {
		return nil, err
	}
	changes := make([]protocol.BlockChange, 0, len(edits))
	for _, e := range edits {
		changes = append(changes, e.change())
	}
	return protocol.BlockResp{OK: true, Changes: changes}, nil
}

func prefixed(prefix string, err error) error {
	if ae, ok := err.(*actionError); ok {
		cp := *ae
		cp.msg = prefix + ": " + ae.msg
		return &cp
	}
	return err
}
