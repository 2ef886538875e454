package loaders

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/spaghettifunk/portrait/engine/core"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// BinaryLoader reads container files from disk. Files wrapped in a zstd
// frame are decompressed transparently.
type BinaryLoader struct {
	// MaxSize caps the (decompressed) blob size. Zero means no limit.
	MaxSize int64
}

func (bl *BinaryLoader) Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var src io.Reader = f
	if bl.MaxSize > 0 {
		src = io.LimitReader(f, bl.MaxSize+1)
	}
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if bl.MaxSize > 0 && int64(len(buf)) > bl.MaxSize {
		return nil, fmt.Errorf("%s is larger than %s", path, humanize.IBytes(uint64(bl.MaxSize)))
	}

	if !bytes.HasPrefix(buf, zstdMagic) {
		return buf, nil
	}
	out, err := bl.unwrap(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrMalformedContainer, path, err)
	}
	core.LogDebug("%s: zstd %s -> %s", path, humanize.IBytes(uint64(len(buf))), humanize.IBytes(uint64(len(out))))
	return out, nil
}

func (bl *BinaryLoader) unwrap(buf []byte) ([]byte, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if bl.MaxSize > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(bl.MaxSize)))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(buf, nil)
}

// ReadBlob reads a container file with no size limit.
func ReadBlob(path string) ([]byte, error) {
	bl := &BinaryLoader{}
	return bl.Load(path)
}
