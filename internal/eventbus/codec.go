package eventbus

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Значения Metadata["encoding"] для полезной нагрузки.
const (
	EncodingJSON = "json"
	EncodingZstd = "json+zstd"
)

// payloadCodec упаковывает сериализованную полезную нагрузку конверта.
type payloadCodec interface {
	Name() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

type plainCodec struct{}

func (plainCodec) Name() string                      { return EncodingJSON }
func (plainCodec) Encode(src []byte) ([]byte, error) { return src, nil }
func (plainCodec) Decode(src []byte) ([]byte, error) { return src, nil }

// zstdCodec использует EncodeAll/DecodeAll, они безопасны для конкурентного вызова.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	sharedZstd     *zstdCodec
	sharedZstdErr  error
	sharedZstdOnce sync.Once
)

func getZstdCodec() (*zstdCodec, error) {
	sharedZstdOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			sharedZstdErr = fmt.Errorf("zstd encoder: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			sharedZstdErr = fmt.Errorf("zstd decoder: %w", err)
			return
		}
		sharedZstd = &zstdCodec{enc: enc, dec: dec}
	})
	return sharedZstd, sharedZstdErr
}

func (c *zstdCodec) Name() string { return EncodingZstd }

func (c *zstdCodec) Encode(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

func (c *zstdCodec) Decode(src []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, nil)
}

func codecFor(encoding string) (payloadCodec, error) {
	switch encoding {
	case "", EncodingJSON:
		return plainCodec{}, nil
	case EncodingZstd:
		c, err := getZstdCodec()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("неизвестная кодировка полезной нагрузки: %q", encoding)
	}
}
