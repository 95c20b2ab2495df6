package replication

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldgen/internal/config"
	"worldgen/internal/mapgen"
	"worldgen/internal/terrain"
	"worldgen/internal/world"
)

const waitFor = 10 * time.Second

func smallSettings() terrain.Settings {
	cfg := config.Default()
	cfg.World.WorldSizeInChunks = 2
	cfg.World.ChunkSize = 16
	cfg.Terrain.TreeDensity = 0
	cfg.Generation.Workers = 2
	return terrain.SettingsFrom(cfg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type cluster struct {
	authority *mapgen.WorldState
	hub       *Hub
	addr      string
	ctx       context.Context
}

func startCluster(t *testing.T, seed int64) *cluster {
	t.Helper()
	authority := mapgen.New(mapgen.Options{Role: mapgen.RoleAuthority, Settings: smallSettings(), Logger: quietLogger()})
	hub, err := NewHub(authority, quietLogger())
	require.NoError(t, err)
	authority.SetBroadcaster(hub)
	require.NoError(t, authority.GenerateWorld(context.Background(), seed))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return &cluster{authority: authority, hub: hub, addr: l.Addr().String(), ctx: ctx}
}

func (c *cluster) join(t *testing.T) (*mapgen.WorldState, *Mirror) {
	t.Helper()
	w := mapgen.New(mapgen.Options{Role: mapgen.RoleMirror, Settings: smallSettings(), Logger: quietLogger()})
	m, err := NewMirror(w, quietLogger())
	require.NoError(t, err)
	require.NoError(t, m.Dial(c.ctx, c.addr, time.Second))
	t.Cleanup(m.Close)
	require.NoError(t, m.Sync())
	return w, m
}

func storesMatch(a, b *mapgen.WorldState) func() bool {
	return func() bool {
		return assert.ObjectsAreEqual(a.Store().Entries(), b.Store().Entries())
	}
}

func TestRolesAreChecked(t *testing.T) {
	mirror := mapgen.New(mapgen.Options{Role: mapgen.RoleMirror, Settings: smallSettings()})
	_, err := NewHub(mirror, nil)
	assert.ErrorIs(t, err, ErrNotAuthoritative)

	authority := mapgen.New(mapgen.Options{Role: mapgen.RoleAuthority, Settings: smallSettings()})
	_, err = NewMirror(authority, nil)
	assert.ErrorIs(t, err, ErrNotMirror)
}

func TestMirrorSyncsCompletedWorld(t *testing.T) {
	c := startCluster(t, 42)
	w, m := c.join(t)

	assert.True(t, w.Flags().HasGenerated)
	assert.Equal(t, c.authority.GenerationID(), w.GenerationID())
	assert.Equal(t, c.authority.Store().Entries(), w.Store().Entries())
	assert.Equal(t, c.authority.Caves(), w.Caves())
	assert.NotZero(t, m.ClientId)
	require.Eventually(t, func() bool { return c.hub.Sessions() == 1 }, waitFor, 10*time.Millisecond)
}

func TestMirrorFollowsMutations(t *testing.T) {
	c := startCluster(t, 7)
	w, _ := c.join(t)
	layout := c.authority.Layout()

	target := layout.BlockToWorldPosition(world.ChunkCoord{X: 1, Y: 1}, world.LocalPos{X: 3, Y: 3, Z: 50})
	require.True(t, c.authority.SetBlockTypeAtPosition(target, world.BlockTurret))
	require.Eventually(t, func() bool {
		return w.GetBlockTypeAtPosition(target) == world.BlockTurret
	}, waitFor, 10*time.Millisecond)

	ground := layout.BlockToWorldPosition(world.ChunkCoord{X: 0, Y: 1}, world.LocalPos{X: 4, Y: 4, Z: 0})
	require.False(t, c.authority.ApplyDamageToBlock(ground, 10, world.DamageSource{DamageType: "pick"}))
	key := layout.WorldToKey(ground)
	require.Eventually(t, func() bool {
		rec, ok := w.DamageRecord(key)
		return ok && rec.Last.DamageType == "pick"
	}, waitFor, 10*time.Millisecond)

	require.True(t, c.authority.ApplyDamageToBlock(ground, 1e6, world.DamageSource{}))
	require.Eventually(t, storesMatch(c.authority, w), waitFor, 10*time.Millisecond)
	_, ok := w.DamageRecord(key)
	assert.False(t, ok)
	require.NoError(t, w.VerifyInstances())
}

func TestLateMirrorReceivesEarlierMutations(t *testing.T) {
	c := startCluster(t, 11)
	layout := c.authority.Layout()
	target := layout.BlockToWorldPosition(world.ChunkCoord{X: 0, Y: 0}, world.LocalPos{X: 8, Y: 8, Z: 45})
	require.True(t, c.authority.SetBlockTypeAtPosition(target, world.BlockStorage))

	w, _ := c.join(t)
	require.Eventually(t, func() bool {
		return w.GetBlockTypeAtPosition(target) == world.BlockStorage
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, c.authority.Store().Entries(), w.Store().Entries())
}

func TestMirrorFollowsNewSeed(t *testing.T) {
	c := startCluster(t, 1)
	w, _ := c.join(t)
	layout := c.authority.Layout()
	target := layout.BlockToWorldPosition(world.ChunkCoord{X: 0, Y: 0}, world.LocalPos{X: 2, Y: 2, Z: 50})
	require.True(t, c.authority.SetBlockTypeAtPosition(target, world.BlockTrap))
	require.Eventually(t, storesMatch(c.authority, w), waitFor, 10*time.Millisecond)

	require.NoError(t, c.authority.SetNewSeed(context.Background(), 2))
	require.Eventually(t, func() bool { return w.Seed() == 2 && w.Flags().HasGenerated }, waitFor, 10*time.Millisecond)
	require.Eventually(t, storesMatch(c.authority, w), waitFor, 10*time.Millisecond)
	assert.Equal(t, world.BlockAir, w.GetBlockTypeAtPosition(target))
}

func TestMirrorWaitsForIncompleteAuthority(t *testing.T) {
	authority := mapgen.New(mapgen.Options{Role: mapgen.RoleAuthority, Settings: smallSettings(), Logger: quietLogger()})
	hub, err := NewHub(authority, quietLogger())
	require.NoError(t, err)
	authority.SetBroadcaster(hub)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Serve(ctx, l)

	w := mapgen.New(mapgen.Options{Role: mapgen.RoleMirror, Settings: smallSettings(), Logger: quietLogger()})
	m, err := NewMirror(w, quietLogger())
	require.NoError(t, err)
	require.NoError(t, m.Dial(ctx, l.Addr().String(), time.Second))
	defer m.Close()
	require.NoError(t, m.Sync())
	assert.False(t, w.Flags().HasGenerated)

	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, waitFor, 10*time.Millisecond)
	require.NoError(t, authority.GenerateWorld(context.Background(), 99))
	require.Eventually(t, func() bool { return w.Flags().HasGenerated }, waitFor, 10*time.Millisecond)
	assert.Equal(t, authority.Store().Entries(), w.Store().Entries())
}
