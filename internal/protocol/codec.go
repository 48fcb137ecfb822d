package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Format — формат сериализации полезной нагрузки события
type Format byte

const (
	FormatJSON  Format = 'j' // JSON документ
	FormatProto Format = 'p' // google.protobuf.Struct
)

// ParseFormat разбирает имя формата из конфигурации.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "json":
		return FormatJSON, nil
	case "proto", "protobuf":
		return FormatProto, nil
	}
	return 0, fmt.Errorf("unknown payload format %q", name)
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProto:
		return "proto"
	}
	return "unknown"
}

// Compression — тип сжатия кадра
type Compression byte

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

// headerSize — [format][compression]
const headerSize = 2

var (
	ErrShortFrame        = errors.New("payload frame too short")
	ErrUnknownFormat     = errors.New("unknown payload format")
	ErrUnknownCompressor = errors.New("unknown payload compression")
)

// Codec кодирует документы событий в кадры: 2 байта заголовка и тело.
// Тело сжимается zstd, если его размер не меньше CompressThreshold.
// Codec безопасен для конкурентного использования.
type Codec struct {
	format    Format
	threshold int

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec создаёт кодек. threshold <= 0 отключает сжатие.
func NewCodec(format Format, threshold int) (*Codec, error) {
	if format != FormatJSON && format != FormatProto {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("ошибка создания zstd decoder: %w", err)
	}

	return &Codec{
		format:    format,
		threshold: threshold,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// Format возвращает формат, которым кодек кодирует кадры.
func (c *Codec) Format() Format { return c.format }

// Encode сериализует документ. Значения документа должны быть
// JSON-совместимыми (см. structpb.NewValue).
func (c *Codec) Encode(doc map[string]interface{}) ([]byte, error) {
	var body []byte
	var err error

	switch c.format {
	case FormatProto:
		var s *structpb.Struct
		s, err = structpb.NewStruct(doc)
		if err != nil {
			return nil, fmt.Errorf("ошибка преобразования в structpb: %w", err)
		}
		body, err = proto.Marshal(s)
	default:
		body, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации полезной нагрузки: %w", err)
	}

	compression := CompressionNone
	if c.threshold > 0 && len(body) >= c.threshold {
		body = c.encoder.EncodeAll(body, nil)
		compression = CompressionZstd
	}

	frame := make([]byte, 0, headerSize+len(body))
	frame = append(frame, byte(c.format), byte(compression))
	return append(frame, body...), nil
}

// Decode разбирает кадр любого формата, независимо от формата кодека.
func (c *Codec) Decode(frame []byte) (map[string]interface{}, error) {
	if len(frame) < headerSize {
		return nil, ErrShortFrame
	}
	format, compression, body := Format(frame[0]), Compression(frame[1]), frame[headerSize:]

	switch compression {
	case CompressionNone:
	case CompressionZstd:
		decompressed, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("decompression failed: %w", err)
		}
		body = decompressed
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompressor, compression)
	}

	switch format {
	case FormatJSON:
		var doc map[string]interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("ошибка десериализации JSON: %w", err)
		}
		return doc, nil
	case FormatProto:
		s := &structpb.Struct{}
		if err := proto.Unmarshal(body, s); err != nil {
			return nil, fmt.Errorf("ошибка десериализации structpb: %w", err)
		}
		return s.AsMap(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
}

// IsCompressed сообщает, сжат ли кадр.
func IsCompressed(frame []byte) bool {
	return len(frame) >= headerSize && Compression(frame[1]) == CompressionZstd
}

// Close освобождает ресурсы zstd.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
