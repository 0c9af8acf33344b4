package grid

import (
	"fmt"
	"sync"
	"testing"

	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(x, y uint32, name string) *RegionRecord {
	return &RegionRecord{
		RegionID: uuid.New(),
		Handle:   tile.Encode(x, y),
		Name:     name,
		Online:   true,
	}
}

// assertCoherent проверяет, что оба индекса указывают на одни и те же записи
func assertCoherent(t *testing.T, s *regionStore) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()

	require.Equal(t, len(s.byID), len(s.byHandle), "индексы разного размера")
	for id, rec := range s.byID {
		assert.Equal(t, id, rec.RegionID)
		other, ok := s.byHandle[rec.Handle]
		if assert.True(t, ok, "запись %s отсутствует в индексе handle", id) {
			assert.Same(t, rec, other)
		}
	}
	for h, rec := range s.byHandle {
		assert.Equal(t, h, rec.Handle)
		other, ok := s.byID[rec.RegionID]
		if assert.True(t, ok, "запись %s отсутствует в индексе id", h) {
			assert.Same(t, rec, other)
		}
	}
}

func TestStoreInsertCollisionLeavesStoreUnchanged(t *testing.T) {
	s := newRegionStore()
	a := newRecord(3, 4, "A")

	_, ok := s.insert(a)
	require.True(t, ok)

	before := s.snapshot()

	b := newRecord(3, 4, "B")
	occupant, ok := s.insert(b)
	assert.False(t, ok)
	assert.Equal(t, a.RegionID, occupant.RegionID)

	assert.ElementsMatch(t, before, s.snapshot())
	_, found := s.getByID(b.RegionID)
	assert.False(t, found)
	assertCoherent(t, s)
}

func TestStoreInsertRejectsDuplicateID(t *testing.T) {
	s := newRegionStore()
	a := newRecord(1, 1, "A")
	_, ok := s.insert(a)
	require.True(t, ok)

	dup := newRecord(2, 2, "dup")
	dup.RegionID = a.RegionID
	_, ok = s.insert(dup)
	assert.False(t, ok)

	_, found := s.getByHandle(tile.Encode(2, 2))
	assert.False(t, found)
	assertCoherent(t, s)
}

func TestStoreRemoveMarksOfflineAndClearsBothIndexes(t *testing.T) {
	s := newRegionStore()
	a := newRecord(5, 5, "A")
	s.insert(a)

	removed, ok := s.remove(a.RegionID)
	require.True(t, ok)
	assert.False(t, removed.Online)
	assert.Equal(t, a.Handle, removed.Handle)

	_, ok = s.getByID(a.RegionID)
	assert.False(t, ok)
	_, ok = s.getByHandle(a.Handle)
	assert.False(t, ok)

	_, ok = s.remove(a.RegionID)
	assert.False(t, ok)
	assertCoherent(t, s)

	// Тайл снова свободен
	_, ok = s.insert(newRecord(5, 5, "A2"))
	assert.True(t, ok)
}

func TestStoreUpdateVisibleThroughBothIndexes(t *testing.T) {
	s := newRegionStore()
	a := newRecord(7, 8, "A")
	s.insert(a)

	name := "Alpha"
	updated, ok := s.updateByID(a.RegionID, RegionPatch{Name: &name})
	require.True(t, ok)
	assert.Equal(t, "Alpha", updated.Name)
	assert.Equal(t, a.Handle, updated.Handle)
	assert.Equal(t, a.RegionID, updated.RegionID)

	byHandle, ok := s.getByHandle(a.Handle)
	require.True(t, ok)
	assert.Equal(t, "Alpha", byHandle.Name)

	_, ok = s.updateByID(uuid.New(), RegionPatch{Name: &name})
	assert.False(t, ok)
	assertCoherent(t, s)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := newRegionStore()
	a := newRecord(1, 2, "A")
	s.insert(a)

	got, _ := s.getByID(a.RegionID)
	got.Name = "изменено снаружи"

	again, _ := s.getByID(a.RegionID)
	assert.Equal(t, "A", again.Name)
}

func TestStoreScanRange(t *testing.T) {
	s := newRegionStore()
	r0 := newRecord(0, 0, "r0")
	r1 := newRecord(1, 1, "r1")
	r2 := newRecord(2, 2, "r2")
	for _, r := range []*RegionRecord{r0, r1, r2} {
		s.insert(r)
	}

	names := func(recs []RegionRecord) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"r0", "r1"}, names(s.scanRange(0, 0, 1, 1)))
	assert.ElementsMatch(t, []string{"r1", "r2"}, names(s.scanRange(1, 1, 2, 2)))
	assert.ElementsMatch(t, []string{"r2"}, names(s.scanRange(2, 0, 9, 2)))
	assert.Empty(t, s.scanRange(5, 5, 6, 6))
	assert.NotNil(t, s.scanRange(5, 5, 6, 6))
	// Перевёрнутые границы ничего не находят
	assert.Empty(t, s.scanRange(2, 2, 0, 0))
}

func TestStoreConcurrentInsertSameTile(t *testing.T) {
	s := newRegionStore()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := s.insert(newRecord(9, 9, fmt.Sprintf("r%d", i))); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, s.count())
	assertCoherent(t, s)
}

func TestStoreFirst(t *testing.T) {
	s := newRegionStore()
	_, ok := s.first()
	assert.False(t, ok)

	a := newRecord(1, 1, "A")
	s.insert(a)
	rec, ok := s.first()
	require.True(t, ok)
	assert.Equal(t, a.RegionID, rec.RegionID)
}
