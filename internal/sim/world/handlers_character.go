package world

import (
	"context"
	"errors"
	"strings"

	"voxelrealm.ai/internal/protocol"
)

var modelExts = []string{".obj", ".glb", ".gltf"}

func validModelKey(k string) bool {
	k = strings.ToLower(k)
	for _, ext := range modelExts {
		if strings.HasSuffix(k, ext) && len(k) > len(ext) {
			return true
		}
	}
	return false
}

func (s *Server) handleCharacterList(ctx context.Context, c *client, req protocol.Request) (any, error) {
	chars, err := s.store.Characters(ctx, c.sess.UserID)
	if err != nil {
		return nil, storageErr("list characters", err)
	}
	out := protocol.CharacterListResp{OK: true, MaxSlots: s.tun.Characters.MaxSlots, Characters: []protocol.CharacterView{}}
	for _, ch := range chars {
		out.Characters = append(out.Characters, characterView(ch, c.sess.Role))
	}
	return out, nil
}

func (s *Server) handleCharacterCreate(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.CharacterCreateReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	p.ModelKey = strings.TrimSpace(p.ModelKey)
	if !lengthBetween(p.Name, 3, 24) {
		return nil, badRequest("character name must be 3-24 characters")
	}
	if !validModelKey(p.ModelKey) {
		return nil, badRequest("model must be a .obj, .glb or .gltf file")
	}
	ch, err := s.store.CreateCharacter(ctx, c.sess.UserID, p.Name, p.ModelKey, s.tun.Characters.MaxSlots)
	switch {
	case errors.Is(err, ErrSlotsFull):
		return nil, rejected("no free character slots")
	case errors.Is(err, ErrDuplicate):
		return nil, conflict("character name already used")
	case err != nil:
		return nil, storageErr("create character", err)
	}
	return protocol.CharacterResp{OK: true, Character: characterView(ch, c.sess.Role)}, nil
}

func (s *Server) handleCharacterDelete(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.CharacterIDReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	sess := c.sess
	if p.CharacterID == sess.CharacterID && sess.InWorld {
		return nil, rejected("cannot delete the character in play")
	}
	err := s.store.DeleteCharacter(ctx, sess.UserID, p.CharacterID)
	if isNotFound(err) {
		return nil, rejected("character not found")
	}
	if err != nil {
		return nil, storageErr("delete character", err)
	}
	if p.CharacterID == sess.CharacterID {
		sess.CharacterID, sess.CharacterName, sess.ModelKey = 0, "", ""
		sess.Class = roleClass(sess.Role)
	}
	return protocol.OKResp{OK: true}, nil
}

func (s *Server) handleCharacterSelect(ctx context.Context, c *client, req protocol.Request) (any, error) {
	var p protocol.CharacterIDReq
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	sess := c.sess
	if sess.InWorld {
		return nil, rejected("leave the world before switching characters")
	}
	ch, err := s.store.Character(ctx, sess.UserID, p.CharacterID)
	if isNotFound(err) {
		return nil, rejected("character not found")
	}
	if err != nil {
		return nil, storageErr("load character", err)
	}
	if err := s.store.SetLastCharacter(ctx, sess.UserID, ch.ID); err != nil {
		return nil, storageErr("select character", err)
	}
	sess.selectCharacter(ch)
	return protocol.CharacterResp{OK: true, Character: characterView(ch, sess.Role)}, nil
}
