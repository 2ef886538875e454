package loaders

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/pierrec/lz4/v4"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
	"github.com/ulikunitz/xz/lzma"
)

const UnityFSSignature = "UnityFS"

type CompressionType uint32

const (
	CompressionNone CompressionType = iota
	CompressionLZMA
	CompressionLZ4
	CompressionLZ4HC
)

const (
	flagCompressionMask      = 0x3f
	flagBlocksInfoAtEnd      = 0x80
	flagBlockInfoPaddingNeed = 0x200

	nodeFlagSerializedFile = 0x4
)

type StorageBlock struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Flags            uint16
}

type Node struct {
	Offset int64
	Size   int64
	Flags  uint32
	Path   string
}

type BundleHeader struct {
	Signature                  string
	Version                    uint32
	UnityVersion               string
	UnityRevision              string
	Size                       int64
	CompressedBlocksInfoSize   uint32
	UncompressedBlocksInfoSize uint32
	Flags                      uint32
}

// MaxBlocksInfoSize bounds the decompressed directory of a bundle. Real
// directories hold a few entries per file and stay far below it.
const MaxBlocksInfoSize = 16 << 20

// lz4MaxRatio is the largest expansion a valid LZ4 block can reach.
const lz4MaxRatio = 255

// BundleLoader reads UnityFS asset bundles.
type BundleLoader struct {
	// MaxDataSize caps the decompressed size of a bundle. Zero means no limit.
	MaxDataSize int64
}

func (bl *BundleLoader) Signature() string {
	return UnityFSSignature
}

func (bl *BundleLoader) Load(blob []byte) ([]*resources.TextureAsset, error) {
	b, err := bl.Open(blob)
	if err != nil {
		return nil, err
	}

	tl := &TextureLoader{Resolve: b.File}
	var out []*resources.TextureAsset
	parsed := 0
	for _, n := range b.Nodes {
		if !n.isSerializedFile() {
			continue
		}
		sf, err := ParseSerializedFile(n.Path, b.NodeData(n))
		if err != nil {
			return nil, err
		}
		assets, err := tl.Load(sf)
		if err != nil {
			return nil, err
		}
		out = append(out, assets...)
		parsed++
	}
	if parsed == 0 {
		return nil, fmt.Errorf("%w: bundle holds no serialized file", core.ErrMalformedContainer)
	}
	return out, nil
}

func (n Node) isSerializedFile() bool {
	if n.Flags&nodeFlagSerializedFile != 0 {
		return true
	}
	ext := path.Ext(n.Path)
	return ext == "" || ext == ".assets"
}

// Bundle is an opened UnityFS archive with its blocks decompressed.
type Bundle struct {
	Header BundleHeader
	Blocks []StorageBlock
	Nodes  []Node

	data []byte
}

func (b *Bundle) NodeData(n Node) []byte {
	return b.data[n.Offset : n.Offset+n.Size]
}

// File returns the bytes of the node whose base name is name.
func (b *Bundle) File(name string) ([]byte, bool) {
	for _, n := range b.Nodes {
		if path.Base(n.Path) == name {
			return b.NodeData(n), true
		}
	}
	return nil, false
}

// Open parses the bundle header and directory and decompresses every block.
func (bl *BundleLoader) Open(blob []byte) (*Bundle, error) {
	r := newEndianReader(blob, binary.BigEndian)
	h, err := readBundleHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Signature != UnityFSSignature {
		return nil, fmt.Errorf("%w: signature %q", core.ErrUnknownContainer, h.Signature)
	}
	if h.Version < 6 || h.Version > 8 {
		return nil, fmt.Errorf("%w: UnityFS version %d", core.ErrMalformedContainer, h.Version)
	}

	var info []byte
	if h.Flags&flagBlocksInfoAtEnd != 0 {
		start := len(blob) - int(h.CompressedBlocksInfoSize)
		if start < r.pos {
			return nil, fmt.Errorf("%w: blocks info larger than the bundle", core.ErrMalformedContainer)
		}
		info = blob[start:]
	} else {
		if info, err = r.Bytes(int(h.CompressedBlocksInfoSize)); err != nil {
			return nil, err
		}
	}
	if err := bl.checkBlocksInfoSize(h.UncompressedBlocksInfoSize); err != nil {
		return nil, err
	}
	info, err = decompress(CompressionType(h.Flags&flagCompressionMask), info, int(h.UncompressedBlocksInfoSize))
	if err != nil {
		return nil, fmt.Errorf("blocks info: %w", err)
	}
	if h.Flags&flagBlockInfoPaddingNeed != 0 {
		if err := r.Align(16); err != nil {
			return nil, err
		}
	}

	b := &Bundle{Header: h}
	if err := b.readBlocksInfo(newEndianReader(info, binary.BigEndian)); err != nil {
		return nil, fmt.Errorf("blocks info: %w", err)
	}

	var total int64
	for _, blk := range b.Blocks {
		total += int64(blk.UncompressedSize)
	}
	if bl.MaxDataSize > 0 && total > bl.MaxDataSize {
		return nil, fmt.Errorf("%w: bundle expands to %s, limit is %s", core.ErrMalformedContainer,
			humanize.IBytes(uint64(total)), humanize.IBytes(uint64(bl.MaxDataSize)))
	}
	core.LogDebug("UnityFS v%d (%s): %d blocks, %d nodes, %s uncompressed", h.Version, h.UnityVersion,
		len(b.Blocks), len(b.Nodes), humanize.IBytes(uint64(total)))

	b.data = make([]byte, 0, total)
	for i, blk := range b.Blocks {
		src, err := r.Bytes(int(blk.CompressedSize))
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		out, err := decompress(CompressionType(blk.Flags&flagCompressionMask), src, int(blk.UncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		b.data = append(b.data, out...)
	}

	for _, n := range b.Nodes {
		if n.Offset < 0 || n.Size < 0 || n.Offset+n.Size > int64(len(b.data)) {
			return nil, fmt.Errorf("%w: node %q spans %d+%d outside %d bytes", core.ErrMalformedContainer, n.Path, n.Offset, n.Size, len(b.data))
		}
	}
	return b, nil
}

func (bl *BundleLoader) checkBlocksInfoSize(size uint32) error {
	limit := int64(MaxBlocksInfoSize)
	if bl.MaxDataSize > 0 && bl.MaxDataSize < limit {
		limit = bl.MaxDataSize
	}
	if int64(size) > limit {
		return fmt.Errorf("%w: blocks info expands to %s, limit is %s", core.ErrMalformedContainer,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
	}
	return nil
}

func readBundleHeader(r *endianReader) (BundleHeader, error) {
	var (
		h   BundleHeader
		err error
	)
	if h.Signature, err = r.CString(); err != nil {
		return h, fmt.Errorf("%w: %w", core.ErrUnknownContainer, err)
	}
	if h.Signature != UnityFSSignature {
		return h, nil
	}
	if h.Version, err = r.U32(); err != nil {
		return h, err
	}
	if h.UnityVersion, err = r.CString(); err != nil {
		return h, err
	}
	if h.UnityRevision, err = r.CString(); err != nil {
		return h, err
	}
	if h.Size, err = r.I64(); err != nil {
		return h, err
	}
	if h.CompressedBlocksInfoSize, err = r.U32(); err != nil {
		return h, err
	}
	if h.UncompressedBlocksInfoSize, err = r.U32(); err != nil {
		return h, err
	}
	if h.Flags, err = r.U32(); err != nil {
		return h, err
	}
	if h.Version >= 7 {
		if err := r.Align(16); err != nil {
			return h, err
		}
	}
	return h, nil
}

func (b *Bundle) readBlocksInfo(r *endianReader) error {
	if err := r.Skip(16); err != nil { // uncompressed data hash
		return err
	}
	blockCount, err := r.Count(10)
	if err != nil {
		return err
	}
	b.Blocks = make([]StorageBlock, blockCount)
	for i := range b.Blocks {
		blk := &b.Blocks[i]
		if blk.UncompressedSize, err = r.U32(); err != nil {
			return err
		}
		if blk.CompressedSize, err = r.U32(); err != nil {
			return err
		}
		if blk.Flags, err = r.U16(); err != nil {
			return err
		}
	}

	nodeCount, err := r.Count(21)
	if err != nil {
		return err
	}
	b.Nodes = make([]Node, nodeCount)
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Offset, err = r.I64(); err != nil {
			return err
		}
		if n.Size, err = r.I64(); err != nil {
			return err
		}
		if n.Flags, err = r.U32(); err != nil {
			return err
		}
		if n.Path, err = r.CString(); err != nil {
			return err
		}
	}
	return nil
}

func decompress(ct CompressionType, src []byte, size int) ([]byte, error) {
	switch ct {
	case CompressionNone:
		if len(src) != size {
			return nil, fmt.Errorf("%w: stored block is %d bytes, expected %d", core.ErrMalformedContainer, len(src), size)
		}
		return src, nil
	case CompressionLZMA:
		return decompressLZMA(src, size)
	case CompressionLZ4, CompressionLZ4HC:
		if size < 0 || size > len(src)*lz4MaxRatio+16 {
			return nil, fmt.Errorf("%w: lz4 block of %d bytes cannot expand to %d", core.ErrMalformedContainer, len(src), size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", core.ErrMalformedContainer, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: lz4 block expanded to %d bytes, expected %d", core.ErrMalformedContainer, n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported compression %d", core.ErrMalformedContainer, ct)
	}
}

// Unity stores LZMA blocks as the 5 property bytes followed by the raw
// stream. The classic header also carries the uncompressed size.
func decompressLZMA(src []byte, size int) ([]byte, error) {
	if len(src) < 5 {
		return nil, fmt.Errorf("%w: lzma block too short", core.ErrMalformedContainer)
	}
	hdr := make([]byte, 13)
	copy(hdr, src[:5])
	binary.LittleEndian.PutUint64(hdr[5:], uint64(size))

	zr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(hdr), bytes.NewReader(src[5:])))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma: %w", core.ErrMalformedContainer, err)
	}
	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: lzma: %w", core.ErrMalformedContainer, err)
	}
	return out, nil
}
