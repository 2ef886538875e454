package testbed

import (
	"encoding/binary"

	"github.com/spaghettifunk/portrait/engine/assets/loaders"
)

const (
	classTexture2D   = 28
	classAssetBundle = 142

	alignFlag = 0x4000
)

// Texture describes one Texture2D object to serialize.
type Texture struct {
	Name   string
	Width  int
	Height int
	// Format is the Unity texture format id. Zero writes ETC_RGB4.
	Format int32
	Data   []byte
	// Streamed moves Data into the bundle's .resS file.
	Streamed bool
}

// SerializedOptions controls the serialized file layout.
type SerializedOptions struct {
	// Version of the serialized file format. Zero writes 22.
	Version uint32
	// BigEndian writes the metadata and objects big endian.
	BigEndian bool
	// NoTypeTree leaves the type trees out of the metadata.
	NoTypeTree bool
	// ResourceName is the .resS path streamed textures refer to.
	ResourceName string
}

type treeNode struct {
	level uint8
	typ   string
	name  string
	size  int32
	flags int32
}

func stringNode(level uint8, name string) []treeNode {
	return []treeNode{
		{level, "string", name, -1, 0},
		{level + 1, "Array", "Array", -1, alignFlag},
		{level + 2, "int", "size", 4, 0},
		{level + 2, "char", "data", 1, 0},
	}
}

func texture2DTree(version uint32) []treeNode {
	offsetType := "unsigned int"
	offsetSize := int32(4)
	if version >= 22 {
		offsetType, offsetSize = "UInt64", 8
	}
	nodes := []treeNode{{0, "Texture2D", "Base", -1, 0}}
	nodes = append(nodes, stringNode(1, "m_Name")...)
	nodes = append(nodes,
		treeNode{1, "int", "m_ForcedFallbackFormat", 4, 0},
		treeNode{1, "bool", "m_DownscaleFallback", 1, alignFlag},
		treeNode{1, "int", "m_Width", 4, 0},
		treeNode{1, "int", "m_Height", 4, 0},
		treeNode{1, "int", "m_CompleteImageSize", 4, 0},
		treeNode{1, "int", "m_TextureFormat", 4, 0},
		treeNode{1, "int", "m_MipCount", 4, 0},
		treeNode{1, "bool", "m_IsReadable", 1, alignFlag},
		treeNode{1, "TypelessData", "image data", -1, alignFlag},
		treeNode{2, "int", "size", 4, 0},
		treeNode{2, "UInt8", "data", 1, 0},
		treeNode{1, "StreamingInfo", "m_StreamData", -1, 0},
		treeNode{2, offsetType, "offset", offsetSize, 0},
		treeNode{2, "unsigned int", "size", 4, 0},
	)
	nodes = append(nodes, stringNode(2, "path")...)
	return nodes
}

func assetBundleTree() []treeNode {
	nodes := []treeNode{{0, "AssetBundle", "Base", -1, 0}}
	return append(nodes, stringNode(1, "m_Name")...)
}

func writeTypeTree(w *writer, version uint32, nodes []treeNode) {
	var local []byte
	offsets := map[string]uint32{}
	offsetOf := func(s string) uint32 {
		if off, ok := loaders.CommonStringOffset(s); ok {
			return off
		}
		if off, ok := offsets[s]; ok {
			return off
		}
		off := uint32(len(local))
		offsets[s] = off
		local = append(local, s...)
		local = append(local, 0)
		return off
	}

	type packed struct {
		n             treeNode
		typOff, nmOff uint32
	}
	ps := make([]packed, len(nodes))
	for i, n := range nodes {
		ps[i] = packed{n: n, typOff: offsetOf(n.typ), nmOff: offsetOf(n.name)}
	}

	w.i32(int32(len(nodes)))
	w.i32(int32(len(local)))
	for i, p := range ps {
		w.u16(1)
		w.u8(p.n.level)
		if p.n.typ == "Array" {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.u32(p.typOff)
		w.u32(p.nmOff)
		w.i32(p.n.size)
		w.i32(int32(i))
		w.i32(p.n.flags)
		if version >= 19 {
			w.u64(0)
		}
	}
	w.raw(local)
}

func textureObject(order byteOrder, version uint32, t Texture, resName string, resS *[]byte) []byte {
	w := &writer{order: order}
	format := t.Format
	if format == 0 {
		format = 34
	}
	w.alignedString(t.Name)
	w.i32(0) // forced fallback format
	w.bool(false)
	w.align(4)
	w.i32(int32(t.Width))
	w.i32(int32(t.Height))
	w.i32(int32(len(t.Data)))
	w.i32(format)
	w.i32(1)
	w.bool(false)
	w.align(4)

	if t.Streamed {
		offset := len(*resS)
		*resS = append(*resS, t.Data...)
		for len(*resS)%16 != 0 {
			*resS = append(*resS, 0)
		}
		w.i32(0)
		w.align(4)
		if version >= 22 {
			w.u64(uint64(offset))
		} else {
			w.u32(uint32(offset))
		}
		w.u32(uint32(len(t.Data)))
		w.alignedString("archive:/" + resName)
		return w.buf
	}

	w.i32(int32(len(t.Data)))
	w.raw(t.Data)
	w.align(4)
	if version >= 22 {
		w.u64(0)
	} else {
		w.u32(0)
	}
	w.u32(0)
	w.alignedString("")
	return w.buf
}

// SerializedFile writes a serialized file holding an AssetBundle object
// followed by one Texture2D object per texture. Streamed texture data is
// returned separately as the contents of the .resS file.
func SerializedFile(opts SerializedOptions, textures ...Texture) (file, resS []byte) {
	version := opts.Version
	if version == 0 {
		version = 22
	}
	var order byteOrder = binary.LittleEndian
	if opts.BigEndian {
		order = binary.BigEndian
	}

	type object struct {
		pathID  int64
		typeIdx int32
		classID int32
		data    []byte
	}
	bundleObj := &writer{order: order}
	bundleObj.alignedString("portrait")
	objects := []object{{pathID: 1, typeIdx: 0, classID: classAssetBundle, data: bundleObj.buf}}
	for i, t := range textures {
		objects = append(objects, object{
			pathID:  int64(100 + i),
			typeIdx: 1,
			classID: classTexture2D,
			data:    textureObject(order, version, t, opts.ResourceName, &resS),
		})
	}

	headerSize := 20
	if version >= 22 {
		headerSize = 48
	}
	w := &writer{order: order, buf: make([]byte, headerSize)}

	w.cstring("2021.3.1f1")
	w.i32(13) // Android
	if version >= 13 {
		w.bool(!opts.NoTypeTree)
	}

	types := []struct {
		classID int32
		tree    []treeNode
	}{
		{classAssetBundle, assetBundleTree()},
		{classTexture2D, texture2DTree(version)},
	}
	w.i32(int32(len(types)))
	for _, t := range types {
		w.i32(t.classID)
		if version >= 16 {
			w.u8(0)
		}
		if version >= 17 {
			w.i16(-1)
		}
		if version >= 13 {
			w.raw(make([]byte, 16))
		}
		if !opts.NoTypeTree {
			writeTypeTree(w, version, t.tree)
			if version >= 21 {
				w.i32(0)
			}
		}
	}
	if version >= 7 && version < 14 {
		w.i32(0)
	}

	starts := make([]int64, len(objects))
	var dataSize int64
	for i, o := range objects {
		for dataSize%8 != 0 {
			dataSize++
		}
		starts[i] = dataSize
		dataSize += int64(len(o.data))
	}

	w.i32(int32(len(objects)))
	for i, o := range objects {
		if version >= 14 {
			w.align(4)
			w.i64(o.pathID)
		} else {
			w.i32(int32(o.pathID))
		}
		if version >= 22 {
			w.i64(starts[i])
		} else {
			w.u32(uint32(starts[i]))
		}
		w.u32(uint32(len(o.data)))
		if version >= 16 {
			w.i32(o.typeIdx)
		} else {
			w.i32(o.classID)
			w.u16(uint16(o.classID))
		}
		if version < 11 {
			w.u16(0)
		}
		if version >= 11 && version < 17 {
			w.i16(-1)
		}
		if version == 15 || version == 16 {
			w.u8(0)
		}
	}
	// no script types, externals or ref types
	w.i32(0)
	w.i32(0)

	metadataSize := len(w.buf) - headerSize
	w.align(16)
	dataOffset := len(w.buf)
	for i, o := range objects {
		for int64(len(w.buf)-dataOffset) < starts[i] {
			w.u8(0)
		}
		w.raw(o.data)
	}
	fileSize := len(w.buf)

	h := w.buf[:headerSize]
	be := binary.BigEndian
	if version >= 22 {
		be.PutUint32(h[8:], version)
		be.PutUint32(h[20:], uint32(metadataSize))
		be.PutUint64(h[24:], uint64(fileSize))
		be.PutUint64(h[32:], uint64(dataOffset))
	} else {
		be.PutUint32(h[0:], uint32(metadataSize))
		be.PutUint32(h[4:], uint32(fileSize))
		be.PutUint32(h[8:], version)
		be.PutUint32(h[12:], uint32(dataOffset))
	}
	if opts.BigEndian {
		h[16] = 1
	}
	return w.buf, resS
}
