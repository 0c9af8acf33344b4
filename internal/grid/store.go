package grid

import (
	"sync"

	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
)

// regionStore хранит регионы в двух индексах, по handle и по regionID.
// Оба индекса указывают на один и тот же *RegionRecord и меняются только
// вместе под одним мьютексом. Наружу отдаются копии записей.
type regionStore struct {
	mu       sync.RWMutex
	byHandle map[tile.Handle]*RegionRecord
	byID     map[uuid.UUID]*RegionRecord
}

func newRegionStore() *regionStore {
	return &regionStore{
		byHandle: make(map[tile.Handle]*RegionRecord),
		byID:     make(map[uuid.UUID]*RegionRecord),
	}
}

// insert добавляет запись в оба индекса.
// Если handle (или regionID) уже занят, ничего не меняет и возвращает
// копию занявшей записи и false.
func (s *regionStore) insert(rec *RegionRecord) (RegionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if occupant, exists := s.byHandle[rec.Handle]; exists {
		return *occupant, false
	}
	if occupant, exists := s.byID[rec.RegionID]; exists {
		return *occupant, false
	}

	s.byHandle[rec.Handle] = rec
	s.byID[rec.RegionID] = rec
	return RegionRecord{}, true
}

// remove удаляет запись из обоих индексов и помечает её offline
func (s *regionStore) remove(id uuid.UUID) (RegionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byID[id]
	if !exists {
		return RegionRecord{}, false
	}

	rec.Online = false
	delete(s.byID, id)
	delete(s.byHandle, rec.Handle)
	return *rec, true
}

// updateByID применяет патч метаданных к записи на месте
func (s *regionStore) updateByID(id uuid.UUID, patch RegionPatch) (RegionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byID[id]
	if !exists {
		return RegionRecord{}, false
	}

	patch.apply(rec)
	return *rec, true
}

func (s *regionStore) getByID(id uuid.UUID) (RegionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byID[id]
	if !exists {
		return RegionRecord{}, false
	}
	return *rec, true
}

func (s *regionStore) getByHandle(h tile.Handle) (RegionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byHandle[h]
	if !exists {
		return RegionRecord{}, false
	}
	return *rec, true
}

// scanRange линейно проходит все записи и возвращает те, чьи тайлы лежат
// в прямоугольнике [minX..maxX]x[minY..maxY] включительно. Порядок не определён.
func (s *regionStore) scanRange(minX, minY, maxX, maxY uint32) []RegionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RegionRecord, 0)
	for h, rec := range s.byHandle {
		x, y := tile.Decode(h)
		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			result = append(result, *rec)
		}
	}
	return result
}

// first возвращает произвольную зарегистрированную запись
func (s *regionStore) first() (RegionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.byID {
		return *rec, true
	}
	return RegionRecord{}, false
}

func (s *regionStore) snapshot() []RegionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RegionRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		result = append(result, *rec)
	}
	return result
}

func (s *regionStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
