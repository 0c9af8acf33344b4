package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/annel0/mmo-grid/internal/grid"
	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCache: CacheRepo в памяти для тестов.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error

	// beforeSet вызывается перед каждым BatchSet вне блокировки
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return f.BatchSet(ctx, map[string][]byte{key: value}, ttl)
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, k := range keys {
		delete(f.data, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *fakeCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	f.mu.Lock()
	hook := f.beforeSet
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for k, v := range items {
		f.data[k] = v
		f.ttls[k] = ttl
	}
	return nil
}

func (f *fakeCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var keys []string
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeCache) Close() error              { return nil }
func (f *fakeCache) GetMetrics() CacheMetrics { return CacheMetrics{} }

func (f *fakeCache) keys() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

func (f *fakeCache) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestRegionMirrorFollowsDirectory(t *testing.T) {
	fc := newFakeCache()
	mirror := NewRegionMirror(fc, MirrorConfig{KeyPrefix: "grid:", TTL: time.Minute})
	dir := grid.NewDirectory(grid.DirectoryConfig{})
	mirror.Attach(dir)

	id, err := dir.Register(grid.RegionInfo{TileX: 10, TileY: 20, Name: "A"})
	require.NoError(t, err)

	// Регистрация не уведомляет, запись появляется после Resync
	assert.Equal(t, 0, fc.keys())
	require.NoError(t, mirror.Resync(context.Background(), dir))
	assert.Equal(t, 2, fc.keys())

	name := "Alpha"
	require.True(t, dir.Update(id, grid.RegionPatch{Name: &name}))

	rec, err := mirror.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", rec.Name)
	assert.Equal(t, tile.Encode(10, 20), rec.Handle)

	tileVal, err := fc.Get(context.Background(), mirror.TileKey(tile.Encode(10, 20)))
	require.NoError(t, err)
	assert.Equal(t, id.String(), string(tileVal))
	assert.Equal(t, time.Minute, fc.ttls[mirror.RegionKey(id)])

	require.True(t, dir.Unregister(id))
	assert.Equal(t, 0, fc.keys())
	_, err = mirror.Lookup(context.Background(), id)
	assert.True(t, IsCacheMiss(err))

	writes, deletes, failures := mirror.Stats()
	assert.Equal(t, uint64(2), writes)
	assert.Equal(t, uint64(1), deletes)
	assert.Zero(t, failures)
}

func TestRegionMirrorKeys(t *testing.T) {
	m := NewRegionMirror(newFakeCache(), MirrorConfig{KeyPrefix: "p:"})
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "p:region:11111111-2222-3333-4444-555555555555", m.RegionKey(id))
	assert.Equal(t, "p:tile:1099511628032", m.TileKey(tile.Encode(1, 1)))
}

func TestRegionMirrorCacheFailureIsContained(t *testing.T) {
	fc := newFakeCache()
	fc.setErr(errors.New("redis недоступен"))
	mirror := NewRegionMirror(fc, MirrorConfig{Timeout: 10 * time.Millisecond})
	dir := grid.NewDirectory(grid.DirectoryConfig{})
	mirror.Attach(dir)

	id, err := dir.Register(grid.RegionInfo{TileX: 1, TileY: 1})
	require.NoError(t, err)
	name := "B"
	assert.True(t, dir.Update(id, grid.RegionPatch{Name: &name}))
	assert.True(t, dir.Unregister(id))
	assert.Error(t, mirror.Resync(context.Background(), dir))

	_, _, failures := mirror.Stats()
	assert.Equal(t, uint64(3), failures)
}

func TestRegionMirrorDetachAndRun(t *testing.T) {
	fc := newFakeCache()
	mirror := NewRegionMirror(fc, MirrorConfig{})
	dir := grid.NewDirectory(grid.DirectoryConfig{})
	mirror.Attach(dir)
	mirror.Detach()
	mirror.Detach()

	_, err := dir.Register(grid.RegionInfo{TileX: 2, TileY: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mirror.Run(ctx, dir, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool { return fc.keys() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func TestRegionMirrorResyncDropsRegionUnregisteredDuringWrite(t *testing.T) {
	fc := newFakeCache()
	mirror := NewRegionMirror(fc, MirrorConfig{KeyPrefix: "grid:"})
	dir := grid.NewDirectory(grid.DirectoryConfig{})
	mirror.Attach(dir)

	id, err := dir.Register(grid.RegionInfo{TileX: 4, TileY: 4, Name: "A"})
	require.NoError(t, err)

	// Снятие с регистрации успевает между снимком и записью пакета
	var once sync.Once
	fc.beforeSet = func() {
		once.Do(func() { require.True(t, dir.Unregister(id)) })
	}
	require.NoError(t, mirror.Resync(context.Background(), dir))

	assert.Zero(t, dir.Count())
	assert.Equal(t, 0, fc.keys())
	_, err = mirror.Lookup(context.Background(), id)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, mirror.Resync(context.Background(), dir))
	assert.Equal(t, 0, fc.keys())
}

func TestRegionMirrorIgnoresLateChangeOfUnregisteredRegion(t *testing.T) {
	fc := newFakeCache()
	mirror := NewRegionMirror(fc, MirrorConfig{KeyPrefix: "grid:"})
	dir := grid.NewDirectory(grid.DirectoryConfig{})
	mirror.Attach(dir)

	id, err := dir.Register(grid.RegionInfo{TileX: 5, TileY: 5, Name: "A"})
	require.NoError(t, err)
	stale, ok := dir.LookupByID(id)
	require.True(t, ok)
	require.True(t, dir.Unregister(id))

	// Уведомление об обновлении пришло после уведомления о снятии
	mirror.Apply(stale)
	assert.Equal(t, 0, fc.keys())

	other, err := dir.Register(grid.RegionInfo{TileX: 6, TileY: 6, Name: "B"})
	require.NoError(t, err)
	old, ok := dir.LookupByID(other)
	require.True(t, ok)
	name := "B2"
	require.True(t, dir.Update(other, grid.RegionPatch{Name: &name}))

	// Устаревшая версия живого региона заменяется текущей
	mirror.Apply(old)
	rec, err := mirror.Lookup(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, "B2", rec.Name)
}

func TestRegionMirrorResyncPrunesOrphanKeys(t *testing.T) {
	fc := newFakeCache()
	mirror := NewRegionMirror(fc, MirrorConfig{KeyPrefix: "grid:"})
	dir := grid.NewDirectory(grid.DirectoryConfig{})

	live, err := dir.Register(grid.RegionInfo{TileX: 1, TileY: 2, Name: "live"})
	require.NoError(t, err)

	ghost := uuid.New()
	require.NoError(t, fc.BatchSet(context.Background(), map[string][]byte{
		mirror.RegionKey(ghost):           []byte(`{"name":"ghost"}`),
		mirror.TileKey(tile.Encode(9, 9)): []byte(ghost.String()),
		"grid:region:not-a-uuid":          []byte("x"),
		"other:region:" + ghost.String():  []byte("x"),
	}, 0))

	require.NoError(t, mirror.Resync(context.Background(), dir))

	_, err = fc.Get(context.Background(), mirror.RegionKey(ghost))
	assert.True(t, IsCacheMiss(err))
	_, err = fc.Get(context.Background(), mirror.TileKey(tile.Encode(9, 9)))
	assert.True(t, IsCacheMiss(err))

	_, err = mirror.Lookup(context.Background(), live)
	assert.NoError(t, err)
	_, err = fc.Get(context.Background(), "grid:region:not-a-uuid")
	assert.NoError(t, err)
	_, err = fc.Get(context.Background(), "other:region:"+ghost.String())
	assert.NoError(t, err)
	assert.Equal(t, 4, fc.keys())

	_, deletes, _ := mirror.Stats()
	assert.Equal(t, uint64(2), deletes)
}
