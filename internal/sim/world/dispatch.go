package world

import (
	"context"
	"fmt"
	"runtime/debug"

	"voxelrealm.ai/internal/protocol"
)

type handlerFunc func(ctx context.Context, c *client, req protocol.Request) (any, error)

// route declares a handler and the preconditions checked before it runs.
type route struct {
	fn      handlerFunc
	auth    bool
	inWorld bool
	alive   bool
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		protocol.ActPing:     {fn: s.handlePing},
		protocol.ActRegister: {fn: s.handleRegister},
		protocol.ActLogin:    {fn: s.handleLogin},
		protocol.ActLogout:   {fn: s.handleLogout, auth: true},

		protocol.ActCharacterList:   {fn: s.handleCharacterList, auth: true},
		protocol.ActCharacterCreate: {fn: s.handleCharacterCreate, auth: true},
		protocol.ActCharacterDelete: {fn: s.handleCharacterDelete, auth: true},
		protocol.ActCharacterSelect: {fn: s.handleCharacterSelect, auth: true},

		protocol.ActGetActiveWorld: {fn: s.handleGetActiveWorld, auth: true},
		protocol.ActEnterWorld:     {fn: s.handleEnterWorld, auth: true},
		protocol.ActWorldMove:      {fn: s.handleMove, auth: true, inWorld: true, alive: true},
		protocol.ActWorldRespawn:   {fn: s.handleRespawn, auth: true, inWorld: true},

		protocol.ActWorldBlockBreak: {fn: s.handleBlockBreak, auth: true, inWorld: true, alive: true},
		protocol.ActWorldBlockPlace: {fn: s.handleBlockPlace, auth: true, inWorld: true, alive: true},
		protocol.ActWorldBlockBatch: {fn: s.handleBlockBatch, auth: true, inWorld: true, alive: true},

		protocol.ActWorldDecorRemove:     {fn: s.handleDecorRemove, auth: true, inWorld: true, alive: true},
		protocol.ActWorldLootPickup:      {fn: s.handleLootPickup, auth: true, inWorld: true, alive: true},
		protocol.ActDecorWorldRegenerate: {fn: s.handleDecorRegenerate, auth: true},

		protocol.ActWorldChat:       {fn: s.handleChat, auth: true, inWorld: true, alive: true},
		protocol.ActWorldSetEmotion: {fn: s.handleSetEmotion, auth: true, inWorld: true, alive: true},
		protocol.ActWorldSetClass:   {fn: s.handleSetClass, auth: true, inWorld: true, alive: true},

		protocol.ActInventoryGet:        {fn: s.handleInventoryGet, auth: true},
		protocol.ActInventoryMove:       {fn: s.handleInventoryMove, auth: true},
		protocol.ActInventorySplit:      {fn: s.handleInventorySplit, auth: true},
		protocol.ActInventoryShiftClick: {fn: s.handleInventoryShiftClick, auth: true},
		protocol.ActInventoryUse:        {fn: s.handleInventoryUse, auth: true, inWorld: true, alive: true},
	}
}

// handle decodes one inbound frame, runs its handler and sends exactly one
// correlated response.
func (s *Server) handle(ctx context.Context, c *client, raw []byte) {
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		s.reply(c, req, nil, badRequest("invalid request: %v", err))
		return
	}
	if s.table == nil {
		s.table = s.routes()
	}
	r, ok := s.table[req.Action]
	if !ok {
		s.reply(c, req, nil, &actionError{code: protocol.ErrUnknownAction, msg: "unknown action: " + req.Action})
		return
	}
	if err := checkPreconditions(r, c.sess); err != nil {
		s.reply(c, req, nil, err)
		return
	}

	rctx, cancel := context.WithTimeout(ctx, s.tun.Network.RequestTimeout())
	defer cancel()
	payload, err := s.invoke(rctx, r.fn, c, req)
	s.reply(c, req, payload, err)
}

func checkPreconditions(r route, sess *Session) error {
	if r.auth && sess == nil {
		return errNotAuthenticated
	}
	if r.inWorld && (sess == nil || !sess.InWorld) {
		return errNotInWorld
	}
	if r.alive && sess != nil && sess.Dead() {
		return errDead
	}
	return nil
}

func (s *Server) invoke(ctx context.Context, fn handlerFunc, c *client, req protocol.Request) (payload any, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Printf("panic in %s: %v\n%s", req.Action, p, debug.Stack())
			payload, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, c, req)
}

func (s *Server) reply(c *client, req protocol.Request, payload any, err error) {
	if err != nil {
		ep, logIt := errorPayload(err)
		if logIt {
			s.log.Printf("%s conn=%s: %v", req.Action, c.conn.ID, err)
		}
		payload = ep
	}
	s.send(c, protocol.Response{ID: req.ID, Action: req.Action, Payload: payload})
}

func decode(req protocol.Request, v any) error {
	if err := protocol.DecodePayload(req.Payload, v); err != nil {
		return badRequest("invalid payload: %v", err)
	}
	return nil
}
