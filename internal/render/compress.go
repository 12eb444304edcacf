package render

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Encoding is an HTTP content coding quire can precompute.
type Encoding string

const (
	Gzip Encoding = "gzip"
	Zstd Encoding = "zstd"
)

// Suffix is the file extension appended to the variant's path.
func (e Encoding) Suffix() string {
	switch e {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	}
	return ""
}

// ParseEncoding validates a configured encoding name.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(s); e {
	case Gzip, Zstd:
		return e, nil
	}
	return "", fmt.Errorf("unknown encoding %q (want gzip or zstd)", s)
}

// zstdEncoder is reused across calls; zstd.Encoder is safe for concurrent
// EncodeAll.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression),
	)
	if err != nil {
		panic("render: zstd encoder initialization failed: " + err.Error())
	}
}

// Compress encodes data. Output is deterministic for a given input.
func Compress(e Encoding, data []byte) ([]byte, error) {
	switch e {
	case Zstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case Gzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", e)
}
