package testbed

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

const (
	CompressionNone uint32 = 0
	CompressionLZMA uint32 = 1
	CompressionLZ4  uint32 = 2

	flagBlocksInfoAtEnd = 0x80
	flagBlockInfoPad    = 0x200

	cabName = "CAB-5e1f2a3b4c5d6e7f8091a2b3c4d5e6f7"
)

// BundleOptions controls the UnityFS layout written by Bundle.
type BundleOptions struct {
	// Version of the UnityFS format. Zero writes 7.
	Version uint32
	// Compression used for data blocks and the blocks info.
	Compression uint32
	// BlockSize splits the node data into blocks of at most this many bytes.
	// Zero writes 128 KiB blocks.
	BlockSize int
	// BlocksInfoAtEnd moves the directory behind the data blocks.
	BlocksInfoAtEnd bool
	// PadBlockInfo aligns the first data block to 16 bytes.
	PadBlockInfo bool
	Serialized   SerializedOptions
}

type bundleNode struct {
	path  string
	data  []byte
	flags uint32
}

// Bundle writes a UnityFS archive holding one serialized file with the given
// textures and, when any texture is streamed, the matching .resS file.
func Bundle(opts BundleOptions, textures ...Texture) ([]byte, error) {
	version := opts.Version
	if version == 0 {
		version = 7
	}
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = 128 * 1024
	}
	sopts := opts.Serialized
	sopts.ResourceName = cabName + "/" + cabName + ".resS"

	file, resS := SerializedFile(sopts, textures...)
	nodes := []bundleNode{{path: cabName, data: file, flags: 4}}
	if len(resS) > 0 {
		nodes = append(nodes, bundleNode{path: cabName + ".resS", data: resS})
	}

	var data []byte
	for _, n := range nodes {
		data = append(data, n.data...)
	}

	type block struct {
		usize, csize uint32
		flags        uint16
		payload      []byte
	}
	var blocks []block
	for off := 0; off < len(data); off += blockSize {
		end := min(off+blockSize, len(data))
		chunk := data[off:end]
		payload, ct, err := compress(opts.Compression, chunk)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block{
			usize:   uint32(len(chunk)),
			csize:   uint32(len(payload)),
			flags:   uint16(ct),
			payload: payload,
		})
	}

	info := &writer{order: binary.BigEndian}
	info.raw(make([]byte, 16))
	info.i32(int32(len(blocks)))
	for _, b := range blocks {
		info.u32(b.usize)
		info.u32(b.csize)
		info.u16(b.flags)
	}
	info.i32(int32(len(nodes)))
	var off int64
	for _, n := range nodes {
		info.i64(off)
		info.i64(int64(len(n.data)))
		info.u32(n.flags)
		info.cstring(n.path)
		off += int64(len(n.data))
	}

	infoCompression := opts.Compression
	if infoCompression == CompressionLZMA {
		infoCompression = CompressionNone
	}
	packedInfo, infoCT, err := compress(infoCompression, info.buf)
	if err != nil {
		return nil, err
	}

	flags := infoCT
	if opts.BlocksInfoAtEnd {
		flags |= flagBlocksInfoAtEnd
	}
	if opts.PadBlockInfo {
		flags |= flagBlockInfoPad
	}

	w := &writer{order: binary.BigEndian}
	w.cstring("UnityFS")
	w.u32(version)
	w.cstring("5.x.x")
	w.cstring("2021.3.1f1")
	sizeAt := len(w.buf)
	w.i64(0)
	w.u32(uint32(len(packedInfo)))
	w.u32(uint32(len(info.buf)))
	w.u32(flags)
	if version >= 7 {
		w.align(16)
	}
	if !opts.BlocksInfoAtEnd {
		w.raw(packedInfo)
	}
	if opts.PadBlockInfo {
		w.align(16)
	}
	for _, b := range blocks {
		w.raw(b.payload)
	}
	if opts.BlocksInfoAtEnd {
		w.raw(packedInfo)
	}
	binary.BigEndian.PutUint64(w.buf[sizeAt:], uint64(len(w.buf)))
	return w.buf, nil
}

// compress packs src with the requested method, falling back to storing it
// when the method does not shrink it.
func compress(method uint32, src []byte) ([]byte, uint32, error) {
	switch method {
	case CompressionNone:
		return src, CompressionNone, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 || n >= len(src) {
			return src, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil
	case CompressionLZMA:
		var buf bytes.Buffer
		zw, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(src))}.NewWriter(&buf)
		if err != nil {
			return nil, 0, err
		}
		if _, err := zw.Write(src); err != nil {
			return nil, 0, err
		}
		if err := zw.Close(); err != nil {
			return nil, 0, err
		}
		// drop the 8 byte size from the classic header
		b := buf.Bytes()
		out := append(b[:5:5], b[13:]...)
		return out, CompressionLZMA, nil
	default:
		return nil, 0, fmt.Errorf("unknown compression %d", method)
	}
}
