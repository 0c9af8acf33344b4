package tile

import "fmt"

// Size: сторона тайла мировой сетки в метрах
const Size = 256

// MaxCoord: максимальный индекс тайла по одной оси, при котором tile*Size
// ещё помещается в 32 бита половины handle
const MaxCoord = 1<<24 - 1

// Handle упаковывает координаты тайла в одно 64-битное число:
// старшие 32 бита содержат X в метрах, младшие 32 бита содержат Y.
type Handle uint64

// Encode упаковывает индексы тайла (tileX, tileY) в Handle.
// Для индексов больше MaxCoord результат переполняется, проверяйте Valid.
func Encode(tileX, tileY uint32) Handle {
	return Handle(uint64(tileX*Size)<<32 | uint64(tileY*Size))
}

// Decode распаковывает Handle обратно в индексы тайла.
// Любое 64-битное значение декодируется в какую-то пару координат.
func Decode(h Handle) (tileX, tileY uint32) {
	return uint32(h>>32) / Size, uint32(h) / Size
}

// FromMeters собирает Handle из мировых координат в метрах без округления
func FromMeters(x, y uint32) Handle {
	return Handle(uint64(x)<<32 | uint64(y))
}

// Valid проверяет, что индексы тайла лежат в допустимом диапазоне
func Valid(tileX, tileY uint32) bool {
	return tileX <= MaxCoord && tileY <= MaxCoord
}

// Tile возвращает индексы тайла
func (h Handle) Tile() (tileX, tileY uint32) {
	return Decode(h)
}

// Meters возвращает мировые координаты юго-западного угла тайла в метрах
func (h Handle) Meters() (x, y uint32) {
	return uint32(h >> 32), uint32(h)
}

// Aligned сообщает, что обе половины кратны Size (handle получен через Encode)
func (h Handle) Aligned() bool {
	x, y := h.Meters()
	return x%Size == 0 && y%Size == 0
}

// String возвращает представление вида "tile(10,20)"
func (h Handle) String() string {
	x, y := h.Tile()
	return fmt.Sprintf("tile(%d,%d)", x, y)
}
