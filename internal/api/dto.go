package api

import (
	"fmt"

	"github.com/annel0/mmo-grid/internal/grid"
	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
)

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RegisterRegionRequest: тело POST /api/regions.
// Handle, если задан и не равен нулю, имеет приоритет над tile_x/tile_y.
type RegisterRegionRequest struct {
	TileX           *uint32   `json:"tile_x"`
	TileY           *uint32   `json:"tile_y"`
	Handle          uint64    `json:"handle"`
	Name            string    `json:"name"`
	Owner           uuid.UUID `json:"owner"`
	HTTPEndpoint    string    `json:"http_endpoint"`
	IPAndPort       string    `json:"ip_and_port"`
	MapTextureID    uuid.UUID `json:"map_texture_id"`
	EnableClientCap bool      `json:"enable_client_cap"`
}

// validate проверяет, что местоположение задано и лежит в сетке.
func (r RegisterRegionRequest) validate() error {
	if r.Handle != 0 {
		return nil
	}
	if r.TileX == nil || r.TileY == nil {
		return fmt.Errorf("нужны tile_x и tile_y либо handle")
	}
	if !tile.Valid(*r.TileX, *r.TileY) {
		return fmt.Errorf("тайл (%d,%d) вне сетки, максимум %d", *r.TileX, *r.TileY, tile.MaxCoord)
	}
	return nil
}

func (r RegisterRegionRequest) info() grid.RegionInfo {
	info := grid.RegionInfo{
		Handle:          tile.Handle(r.Handle),
		Name:            r.Name,
		Owner:           r.Owner,
		HTTPEndpoint:    r.HTTPEndpoint,
		IPAndPort:       r.IPAndPort,
		MapTextureID:    r.MapTextureID,
		EnableClientCap: r.EnableClientCap,
	}
	if r.TileX != nil && r.TileY != nil {
		info.TileX, info.TileY = *r.TileX, *r.TileY
	}
	return info
}

// UpdateRegionRequest: тело PATCH /api/regions/:id.
// Поля местоположения принимаются только чтобы явно отклонить перемещение.
type UpdateRegionRequest struct {
	Name            *string    `json:"name"`
	Owner           *uuid.UUID `json:"owner"`
	HTTPEndpoint    *string    `json:"http_endpoint"`
	IPAndPort       *string    `json:"ip_and_port"`
	MapTextureID    *uuid.UUID `json:"map_texture_id"`
	EnableClientCap *bool      `json:"enable_client_cap"`

	Handle *uint64 `json:"handle"`
	TileX  *uint32 `json:"tile_x"`
	TileY  *uint32 `json:"tile_y"`
}

func (r UpdateRegionRequest) movesRegion() bool {
	return r.Handle != nil || r.TileX != nil || r.TileY != nil
}

func (r UpdateRegionRequest) patch() grid.RegionPatch {
	return grid.RegionPatch{
		Name:            r.Name,
		Owner:           r.Owner,
		HTTPEndpoint:    r.HTTPEndpoint,
		IPAndPort:       r.IPAndPort,
		MapTextureID:    r.MapTextureID,
		EnableClientCap: r.EnableClientCap,
	}
}

// RegionView: запись региона с раскрытыми индексами тайла.
type RegionView struct {
	grid.RegionRecord
	TileX uint32 `json:"tile_x"`
	TileY uint32 `json:"tile_y"`
}

func viewOf(rec grid.RegionRecord) RegionView {
	x, y := rec.Tile()
	return RegionView{RegionRecord: rec, TileX: x, TileY: y}
}

func viewsOf(recs []grid.RegionRecord) []RegionView {
	out := make([]RegionView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, viewOf(rec))
	}
	return out
}

// RegisterRegionResponse: данные ответа на регистрацию.
type RegisterRegionResponse struct {
	RegionID uuid.UUID `json:"region_id"`
	Handle   uint64    `json:"handle"`
}

// CollisionResponse: данные ответа 409.
type CollisionResponse struct {
	Handle   uint64    `json:"handle"`
	Occupant uuid.UUID `json:"occupant"`
}
