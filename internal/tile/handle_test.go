package tile

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeKnownValues(t *testing.T) {
	cases := []struct {
		x, y uint32
		want Handle
	}{
		{0, 0, 0},
		{1, 0, Handle(256) << 32},
		{0, 1, 256},
		{1000, 1000, Handle(256000)<<32 | 256000},
		{10, 20, Handle(2560)<<32 | 5120},
	}

	for _, c := range cases {
		got := Encode(c.x, c.y)
		assert.Equal(t, c.want, got, "Encode(%d,%d)", c.x, c.y)
		assert.True(t, got.Aligned())
	}
}

func TestDecodeIsInverseOfEncode(t *testing.T) {
	edges := [][2]uint32{
		{0, 0}, {0, MaxCoord}, {MaxCoord, 0}, {MaxCoord, MaxCoord}, {1, 1}, {255, 257},
	}
	for _, e := range edges {
		x, y := Decode(Encode(e[0], e[1]))
		assert.Equal(t, e[0], x)
		assert.Equal(t, e[1], y)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		tx := uint32(rng.Intn(MaxCoord + 1))
		ty := uint32(rng.Intn(MaxCoord + 1))
		x, y := Decode(Encode(tx, ty))
		if x != tx || y != ty {
			t.Fatalf("Decode(Encode(%d,%d)) = (%d,%d)", tx, ty, x, y)
		}
	}
}

func TestDecodeArbitraryValue(t *testing.T) {
	// Невыровненный handle всё равно декодируется
	h := FromMeters(1000, 300)
	x, y := Decode(h)
	assert.Equal(t, uint32(3), x)
	assert.Equal(t, uint32(1), y)
	assert.False(t, h.Aligned())

	mx, my := h.Meters()
	assert.Equal(t, uint32(1000), mx)
	assert.Equal(t, uint32(300), my)
}

func TestValidAndString(t *testing.T) {
	assert.True(t, Valid(0, 0))
	assert.True(t, Valid(MaxCoord, MaxCoord))
	assert.False(t, Valid(MaxCoord+1, 0))
	assert.False(t, Valid(0, MaxCoord+1))

	assert.Equal(t, "tile(10,20)", Encode(10, 20).String())
	assert.Equal(t, Encode(7, 9), FromMeters(7*Size, 9*Size))
}
