package grid

import (
	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
)

// RegionRecord описывает один симулятор (регион), занимающий один тайл сетки.
// RegionID и Handle не меняются за время жизни регистрации.
type RegionRecord struct {
	RegionID        uuid.UUID   `json:"region_id"`
	Handle          tile.Handle `json:"handle"`
	Name            string      `json:"name"`
	Owner           uuid.UUID   `json:"owner"`
	HTTPEndpoint    string      `json:"http_endpoint"`
	IPAndPort       string      `json:"ip_and_port"`
	MapTextureID    uuid.UUID   `json:"map_texture_id"`
	Online          bool        `json:"online"`
	EnableClientCap bool        `json:"enable_client_cap"`
}

// Tile возвращает индексы тайла региона
func (r RegionRecord) Tile() (tileX, tileY uint32) {
	return r.Handle.Tile()
}

// RegionInfo: уже разобранный запрос на регистрацию региона.
// Если Handle != 0, он используется как есть, иначе вычисляется из TileX/TileY.
type RegionInfo struct {
	Handle          tile.Handle
	TileX           uint32
	TileY           uint32
	Name            string
	Owner           uuid.UUID
	HTTPEndpoint    string
	IPAndPort       string
	MapTextureID    uuid.UUID
	EnableClientCap bool
}

// TileHandle возвращает ключ тайла, который займёт регистрация:
// готовый Handle, если он задан, иначе Encode(TileX, TileY).
func (i RegionInfo) TileHandle() tile.Handle {
	if i.Handle != 0 {
		return i.Handle
	}
	return tile.Encode(i.TileX, i.TileY)
}

// RegionPatch: частичное обновление метаданных региона.
// nil-поля не трогаются. Handle и RegionID изменить нельзя: перенос региона
// на другой тайл с сохранением идентичности не поддерживается.
type RegionPatch struct {
	Name            *string
	Owner           *uuid.UUID
	HTTPEndpoint    *string
	IPAndPort       *string
	MapTextureID    *uuid.UUID
	EnableClientCap *bool
}

// Empty сообщает, что патч ничего не меняет
func (p RegionPatch) Empty() bool {
	return p.Name == nil && p.Owner == nil && p.HTTPEndpoint == nil &&
		p.IPAndPort == nil && p.MapTextureID == nil && p.EnableClientCap == nil
}

// apply применяет патч к записи на месте
func (p RegionPatch) apply(r *RegionRecord) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Owner != nil {
		r.Owner = *p.Owner
	}
	if p.HTTPEndpoint != nil {
		r.HTTPEndpoint = *p.HTTPEndpoint
	}
	if p.IPAndPort != nil {
		r.IPAndPort = *p.IPAndPort
	}
	if p.MapTextureID != nil {
		r.MapTextureID = *p.MapTextureID
	}
	if p.EnableClientCap != nil {
		r.EnableClientCap = *p.EnableClientCap
	}
}
