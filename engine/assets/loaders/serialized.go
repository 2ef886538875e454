package loaders

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
)

const (
	minSerializedVersion = 9
	// From this version on the header carries 64-bit sizes and offsets.
	largeFilesVersion = 22
)

type SerializedType struct {
	ClassID resources.ClassIDType
	Tree    *TypeTreeNode
}

type ObjectInfo struct {
	PathID    int64
	ByteStart int64
	ByteSize  uint32
	ClassID   resources.ClassIDType
	Type      *SerializedType
}

// SerializedFile is the object table of one Unity serialized file. Object
// payloads are read lazily through the type trees embedded in the metadata.
type SerializedFile struct {
	Name           string
	Version        uint32
	UnityVersion   string
	TargetPlatform int32
	TypeTrees      bool
	Order          binary.ByteOrder
	Types          []SerializedType
	Objects        []ObjectInfo

	data []byte
}

func ParseSerializedFile(name string, data []byte) (*SerializedFile, error) {
	r := newEndianReader(data, binary.BigEndian)

	metadataSize, err := r.U32()
	if err != nil {
		return nil, err
	}
	fileSize32, err := r.U32()
	if err != nil {
		return nil, err
	}
	version, err := r.U32()
	if err != nil {
		return nil, err
	}
	dataOffset32, err := r.U32()
	if err != nil {
		return nil, err
	}
	if version < minSerializedVersion || version > 50 {
		return nil, fmt.Errorf("%w: %s has unsupported serialized file version %d", core.ErrMalformedContainer, name, version)
	}
	endian, err := r.U8()
	if err != nil {
		return nil, err
	}
	if err := r.Skip(3); err != nil {
		return nil, err
	}

	fileSize, dataOffset := int64(fileSize32), int64(dataOffset32)
	if version >= largeFilesVersion {
		if metadataSize, err = r.U32(); err != nil {
			return nil, err
		}
		if fileSize, err = r.I64(); err != nil {
			return nil, err
		}
		if dataOffset, err = r.I64(); err != nil {
			return nil, err
		}
		if err := r.Skip(8); err != nil {
			return nil, err
		}
	}
	if fileSize > int64(len(data)) || dataOffset > int64(len(data)) || int64(metadataSize) > int64(len(data)) {
		return nil, fmt.Errorf("%w: %s header claims %d bytes (data at %d), have %d", core.ErrMalformedContainer, name, fileSize, dataOffset, len(data))
	}

	sf := &SerializedFile{
		Name:      name,
		Version:   version,
		TypeTrees: true,
		Order:     binary.BigEndian,
		data:      data,
	}
	if endian == 0 {
		sf.Order = binary.LittleEndian
	}
	r.order = sf.Order

	if err := sf.readMetadata(r, dataOffset); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return sf, nil
}

func (sf *SerializedFile) readMetadata(r *endianReader, dataOffset int64) error {
	v := sf.Version
	var err error
	if v >= 7 {
		if sf.UnityVersion, err = r.CString(); err != nil {
			return err
		}
	}
	if v >= 8 {
		if sf.TargetPlatform, err = r.I32(); err != nil {
			return err
		}
	}
	if v >= 13 {
		if sf.TypeTrees, err = r.Bool(); err != nil {
			return err
		}
	}

	typeCount, err := r.Count(4)
	if err != nil {
		return err
	}
	sf.Types = make([]SerializedType, typeCount)
	for i := range sf.Types {
		if err := sf.readType(r, &sf.Types[i]); err != nil {
			return fmt.Errorf("type %d: %w", i, err)
		}
	}

	bigIDs := false
	if v >= 7 && v < 14 {
		flag, err := r.I32()
		if err != nil {
			return err
		}
		bigIDs = flag != 0
	}

	objectCount, err := r.Count(12)
	if err != nil {
		return err
	}
	sf.Objects = make([]ObjectInfo, objectCount)
	for i := range sf.Objects {
		if err := sf.readObject(r, &sf.Objects[i], bigIDs, dataOffset); err != nil {
			return fmt.Errorf("object %d: %w", i, err)
		}
	}
	return nil
}

func (sf *SerializedFile) readType(r *endianReader, t *SerializedType) error {
	v := sf.Version
	classID, err := r.I32()
	if err != nil {
		return err
	}
	t.ClassID = resources.ClassIDType(classID)
	if v >= 16 {
		if _, err := r.U8(); err != nil { // stripped
			return err
		}
	}
	if v >= 17 {
		if _, err := r.I16(); err != nil { // script type index
			return err
		}
	}
	if v >= 13 {
		if (v < 16 && classID < 0) || (v >= 16 && t.ClassID == resources.ClassIDMonoBehaviour) {
			if err := r.Skip(16); err != nil { // script id
				return err
			}
		}
		if err := r.Skip(16); err != nil { // old type hash
			return err
		}
	}
	if sf.TypeTrees {
		if v != 10 && v < 12 {
			return fmt.Errorf("%w: legacy type tree layout of version %d", core.ErrNoTypeTree, v)
		}
		if t.Tree, err = readTypeTreeBlob(r, v); err != nil {
			return err
		}
		if v >= 21 {
			deps, err := r.Count(4)
			if err != nil {
				return err
			}
			if err := r.Skip(deps * 4); err != nil {
				return err
			}
		}
	}
	return nil
}

func (sf *SerializedFile) readObject(r *endianReader, obj *ObjectInfo, bigIDs bool, dataOffset int64) error {
	v := sf.Version
	var err error
	switch {
	case bigIDs:
		obj.PathID, err = r.I64()
	case v < 14:
		var id int32
		id, err = r.I32()
		obj.PathID = int64(id)
	default:
		if err = r.Align(4); err == nil {
			obj.PathID, err = r.I64()
		}
	}
	if err != nil {
		return err
	}

	if v >= largeFilesVersion {
		obj.ByteStart, err = r.I64()
	} else {
		var start uint32
		start, err = r.U32()
		obj.ByteStart = int64(start)
	}
	if err != nil {
		return err
	}
	obj.ByteStart += dataOffset
	if obj.ByteSize, err = r.U32(); err != nil {
		return err
	}
	typeID, err := r.I32()
	if err != nil {
		return err
	}

	if v < 16 {
		if _, err := r.U16(); err != nil { // class id
			return err
		}
		for i := range sf.Types {
			if int32(sf.Types[i].ClassID) == typeID {
				obj.Type = &sf.Types[i]
				break
			}
		}
	} else if typeID >= 0 && int(typeID) < len(sf.Types) {
		obj.Type = &sf.Types[typeID]
	}
	if obj.Type == nil {
		return fmt.Errorf("%w: unknown type %d", core.ErrMalformedContainer, typeID)
	}
	obj.ClassID = obj.Type.ClassID

	if v < 11 {
		if _, err := r.U16(); err != nil { // is destroyed
			return err
		}
	}
	if v >= 11 && v < 17 {
		if _, err := r.I16(); err != nil { // script type index
			return err
		}
	}
	if v == 15 || v == 16 {
		if _, err := r.U8(); err != nil { // stripped
			return err
		}
	}

	if obj.ByteStart < 0 || obj.ByteStart+int64(obj.ByteSize) > int64(len(sf.data)) {
		return fmt.Errorf("%w: object %d spans %d+%d outside %d bytes", core.ErrMalformedContainer, obj.PathID, obj.ByteStart, obj.ByteSize, len(sf.data))
	}
	return nil
}

// Bytes returns the raw payload of obj without copying.
func (sf *SerializedFile) Bytes(obj *ObjectInfo) []byte {
	return sf.data[obj.ByteStart : obj.ByteStart+int64(obj.ByteSize)]
}

// Read decodes obj through its type tree.
func (sf *SerializedFile) Read(obj *ObjectInfo) (map[string]any, error) {
	if obj.Type == nil || obj.Type.Tree == nil {
		return nil, fmt.Errorf("%w: %s object %d (%s)", core.ErrNoTypeTree, sf.Name, obj.PathID, obj.ClassID)
	}
	return ReadTypeTree(obj.Type.Tree, sf.Bytes(obj), sf.Order)
}
