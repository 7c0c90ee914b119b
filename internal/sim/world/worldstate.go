package world

import (
	"context"

	"voxelrealm.ai/internal/protocol"
	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/fall"
	"voxelrealm.ai/internal/sim/terrain"
	"voxelrealm.ai/internal/sim/voxel"
)

// worldState caches one loaded world while at least one session is in it.
type worldState struct {
	rec     WorldRecord
	terrain TerrainRecord
	sampler *terrain.Sampler
	voxels  *voxel.Store
	decor   decor.State
	assets  []decor.Asset
	loot    *decor.LootBucket
}

func (w *worldState) cfg() terrain.Config { return w.sampler.Config() }

func (w *worldState) fallConfig(s *Server) fall.Config {
	c := w.cfg()
	return fall.Config{
		FallDamage: c.FallDamageEnabled,
		VoidDeath:  c.VoidDeathEnabled,
		Threshold:  float64(c.FallThresholdVoxels),
		VoidFloor:  float64(c.VoidHeight),
		Epsilon:    s.tun.Fall.Epsilon,
		Protection: s.tun.Fall.SpawnProtection(),
	}
}

// loadWorld returns the cached state of rec, building it from storage on
// first use.
func (s *Server) loadWorld(ctx context.Context, rec WorldRecord) (*worldState, error) {
	if w, ok := s.worlds[rec.ID]; ok {
		return w, nil
	}
	tr, err := s.store.WorldTerrain(ctx, rec.ID)
	if err != nil && !isNotFound(err) {
		return nil, storageErr("load terrain", err)
	}
	if isNotFound(err) {
		tr = TerrainRecord{Config: terrain.Default()}
	}
	tr.Config = terrain.Normalize(tr.Config)
	sampler := terrain.NewSampler(rec.Seed, tr.Config, tr.Cells)

	chunks, err := s.store.VoxelChunks(ctx, rec.ID)
	if err != nil {
		return nil, storageErr("load voxels", err)
	}
	vs := voxel.NewStore(sampler)
	if n := vs.Load(chunks); n > 0 {
		s.log.Printf("world %s: collapsed %d base-equal voxel overrides", rec.Name, n)
	}

	st, err := s.store.DecorState(ctx, rec.ID)
	if err != nil && !isNotFound(err) {
		return nil, storageErr("load decor", err)
	}
	w := &worldState{
		rec:     rec,
		terrain: tr,
		sampler: sampler,
		voxels:  vs,
		decor:   st,
		loot:    decor.NewLootBucket(),
	}
	if _, err := s.refreshDecor(ctx, w); err != nil {
		return nil, err
	}
	s.worlds[rec.ID] = w
	s.log.Printf("world %s loaded: %d chunks, %d decor slots", rec.Name, len(chunks), len(w.decor.Slots))
	return w, nil
}

// refreshDecor reloads the active asset catalog and regenerates the layout
// when its signature no longer matches. A regeneration clears loot and
// persists the new state.
func (s *Server) refreshDecor(ctx context.Context, w *worldState) (bool, error) {
	assets, err := s.store.DecorAssets(ctx)
	if err != nil {
		return false, storageErr("load decor assets", err)
	}
	w.assets = assets
	if !decor.Ensure(&w.decor, w.rec.ID, w.rec.Seed, assets, w.sampler.Cells) {
		return false, nil
	}
	w.loot.Clear()
	if err := s.store.SaveDecorState(ctx, w.rec.ID, w.decor); err != nil {
		return true, storageErr("save decor", err)
	}
	s.log.Printf("world %s: decor layout regenerated (%d slots)", w.rec.Name, len(w.decor.Slots))
	return true, nil
}

// maintainWorld restores due decor slots and tells the world about them.
func (s *Server) maintainWorld(ctx context.Context, w *worldState, force bool) {
	keys := s.maintain.Maintain(w.rec.ID, &w.decor, w.assets, s.now(), force)
	if len(keys) == 0 {
		return
	}
	if err := s.store.SaveDecorState(ctx, w.rec.ID, w.decor); err != nil {
		s.log.Printf("world %s: save decor after respawn: %v", w.rec.Name, err)
	}
	s.broadcastToWorld(w.rec.Name, protocol.EvDecorRespawned, protocol.DecorRespawnedEvent{Keys: keys}, "")
}

func (s *Server) maintainAll(ctx context.Context) {
	if len(s.worlds) == 0 {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, s.tun.Network.StoreTimeout())
	defer cancel()
	for _, w := range s.worlds {
		s.maintainWorld(mctx, w, false)
	}
}

// evictIfEmpty drops the caches of a world nobody is in any more.
func (s *Server) evictIfEmpty(worldID int64) {
	if _, ok := s.worlds[worldID]; !ok {
		return
	}
	if len(s.worldPeers(worldID)) > 0 {
		return
	}
	name := s.worlds[worldID].rec.Name
	delete(s.worlds, worldID)
	s.maintain.Forget(worldID)
	s.log.Printf("world %s evicted", name)
}

func (s *Server) sessionWorld(sess *Session) *worldState {
	return s.worlds[sess.WorldID]
}
