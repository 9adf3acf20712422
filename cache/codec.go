package cache

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses cache entries. Suffix is appended to every file name so
// entries written with different codecs never collide.
type Codec interface {
	Name() string
	Suffix() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Codec names accepted by ParseCodec.
const (
	CodecIdentity = "identity"
	CodecGzip     = "gzip"
	CodecZstd     = "zstd"
)

// ParseCodec returns the codec registered under name, appending its
// compression suffix to ext (e.g. ".json" -> ".json.gz").
func ParseCodec(name, ext string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecGzip:
		return Gzip(ext + ".gz"), nil
	case CodecIdentity, "none":
		return Identity(ext), nil
	case CodecZstd:
		return Zstd(ext + ".zst"), nil
	default:
		return nil, fmt.Errorf("unknown cache compression %q (supported: identity, gzip, zstd)", name)
	}
}

type identityCodec struct{ suffix string }

// Identity stores entries uncompressed.
func Identity(suffix string) Codec {
	return identityCodec{suffix: suffix}
}

func (c identityCodec) Name() string   { return CodecIdentity }
func (c identityCodec) Suffix() string { return c.suffix }

func (c identityCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (c identityCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type gzipCodec struct{ suffix string }

// Gzip wraps entries in a gzip stream.
func Gzip(suffix string) Codec {
	return gzipCodec{suffix: suffix}
}

func (c gzipCodec) Name() string   { return CodecGzip }
func (c gzipCodec) Suffix() string { return c.suffix }

func (c gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (c gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type zstdCodec struct{ suffix string }

// Zstd wraps entries in a zstd frame.
func Zstd(suffix string) Codec {
	return zstdCodec{suffix: suffix}
}

func (c zstdCodec) Name() string   { return CodecZstd }
func (c zstdCodec) Suffix() string { return c.suffix }

func (c zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (c zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
