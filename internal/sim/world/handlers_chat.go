package world

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/inventory"
)

const maxGiveQty = 9999

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func (s *Server) handleChat(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.ChatReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	msg := truncateRunes(strings.TrimSpace(p.Message), s.tun.Chat.MaxLen)
	if msg == "" {
		return nil, badRequest("empty message")
	}
	sess := c.sess
	if !sess.chat.AllowN(s.now(), 1) {
		return nil, rateLimited("slow down")
	}
	if strings.HasPrefix(msg, "/") {
		return s.chatCommand(ctx, sess, msg)
	}
	s.broadcastToWorld(sess.WorldName, protocol.EvChatMessage, protocol.ChatMessageEvent{
		UserID:        sess.UserID,
		Username:      sess.Username,
		CharacterName: sess.CharacterName,
		Message:       msg,
		At:            s.now().UnixMilli(),
	}, "")
	return protocol.ChatResp{OK: true, Message: msg}, nil
}

func (s *Server) chatCommand(ctx context.Context, sess *Session, msg string) (any, error) {
	fields := strings.Fields(msg)
	switch strings.ToLower(fields[0]) {
	case "/give":
		return s.give(ctx, sess, fields[1:])
	}
	return nil, badRequest("unknown command %s", fields[0])
}

// give handles "/give <username> <item_code> [qty]".
func (s *Server) give(ctx context.Context, sess *Session, args []string) (any, error) {
	if !sess.IsAdmin() {
		return nil, forbidden("admin only")
	}
	if len(args) < 2 || len(args) > 3 {
		return nil, badRequest("usage: /give <username> <item_code> [qty]")
	}
	qty := 1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 || n > maxGiveQty {
			return nil, badRequest("qty must be 1-%d", maxGiveQty)
		}
		qty = n
	}
	target, err := s.store.UserByUsername(ctx, args[0])
	if isNotFound(err) {
		return nil, rejected("unknown user %s", args[0])
	}
	if err != nil {
		return nil, storageErr("load user", err)
	}
	code := strings.ToLower(args[1])

	var res inventory.AddResult
	grid, err := s.store.UpdateInventory(ctx, target.ID, s.layout, func(g *inventory.Grid, cat inventory.Catalog) error {
		var err error
		res, err = inventory.Add(g, cat, code, qty)
		return err
	})
	if errors.Is(err, inventory.ErrUnknownItem) {
		return nil, rejected("unknown item %s", code)
	}
	if err != nil {
		return nil, inventoryErr("give", err)
	}
	if tc := s.sessionByUserID(target.ID); tc != nil && res.Added > 0 {
		s.send(tc, protocol.Event(protocol.EvInventoryUpdated, protocol.InventoryUpdatedEvent{Inventory: s.committedView(ctx, grid)}))
	}
	if err := s.store.LogAdminAction(ctx, AdminAction{
		ActorID: sess.UserID, Action: "give", Target: target.Username,
		Detail: code + " x" + strconv.Itoa(res.Added), At: s.now(),
	}); err != nil {
		s.log.Printf("admin audit: %v", err)
	}
	return protocol.ChatResp{OK: true, Command: "give", Target: target.Username, Item: code, Added: res.Added, Left: res.Left}, nil
}
