package loaders

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/portrait/engine/core"
)

// Fields flagged with this bit are followed by padding to a 4 byte boundary.
const alignBytesFlag = 0x4000

type TypeTreeNode struct {
	Type     string
	Name     string
	ByteSize int32
	Level    uint8
	MetaFlag int32
	Children []*TypeTreeNode
}

func (n *TypeTreeNode) aligned() bool {
	return n.MetaFlag&alignBytesFlag != 0
}

// Child returns the direct child with the given field name.
func (n *TypeTreeNode) Child(name string) *TypeTreeNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// readTypeTreeBlob parses the flat node list of a type tree (format used by
// serialized file versions 10 and 12 onwards) into a tree rooted at the
// first node.
func readTypeTreeBlob(r *endianReader, version uint32) (*TypeTreeNode, error) {
	nodeSize := 24
	if version >= 19 {
		nodeSize = 32
	}
	count, err := r.Count(nodeSize)
	if err != nil {
		return nil, err
	}
	stringSize, err := r.Count(1)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: empty type tree", core.ErrMalformedContainer)
	}

	type rawNode struct {
		typeOff, nameOff uint32
		node             *TypeTreeNode
	}
	raw := make([]rawNode, count)
	for i := range raw {
		if _, err := r.U16(); err != nil { // version
			return nil, err
		}
		level, err := r.U8()
		if err != nil {
			return nil, err
		}
		if _, err := r.U8(); err != nil { // type flags
			return nil, err
		}
		typeOff, err := r.U32()
		if err != nil {
			return nil, err
		}
		nameOff, err := r.U32()
		if err != nil {
			return nil, err
		}
		byteSize, err := r.I32()
		if err != nil {
			return nil, err
		}
		if _, err := r.I32(); err != nil { // index
			return nil, err
		}
		metaFlag, err := r.I32()
		if err != nil {
			return nil, err
		}
		if version >= 19 {
			if _, err := r.U64(); err != nil { // ref type hash
				return nil, err
			}
		}
		raw[i] = rawNode{
			typeOff: typeOff,
			nameOff: nameOff,
			node:    &TypeTreeNode{ByteSize: byteSize, Level: level, MetaFlag: metaFlag},
		}
	}

	local, err := r.Bytes(stringSize)
	if err != nil {
		return nil, err
	}

	var stack []*TypeTreeNode
	for i, rn := range raw {
		n := rn.node
		var ok bool
		if n.Type, ok = lookupString(local, rn.typeOff); !ok {
			return nil, fmt.Errorf("%w: node %d has bad type string offset %#x", core.ErrMalformedContainer, i, rn.typeOff)
		}
		if n.Name, ok = lookupString(local, rn.nameOff); !ok {
			return nil, fmt.Errorf("%w: node %d has bad name string offset %#x", core.ErrMalformedContainer, i, rn.nameOff)
		}

		if i == 0 {
			if n.Level != 0 {
				return nil, fmt.Errorf("%w: type tree root at level %d", core.ErrMalformedContainer, n.Level)
			}
			stack = append(stack, n)
			continue
		}
		if n.Level == 0 || int(n.Level) > len(stack) {
			return nil, fmt.Errorf("%w: node %d jumps to level %d", core.ErrMalformedContainer, i, n.Level)
		}
		stack = stack[:n.Level]
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, n)
		stack = append(stack, n)
	}
	return raw[0].node, nil
}

// ReadTypeTree decodes one object with its type tree. Classes become
// map[string]any keyed by field name, arrays []any, maps []MapEntry and
// TypelessData a []byte sharing the input buffer.
func ReadTypeTree(root *TypeTreeNode, data []byte, order binary.ByteOrder) (map[string]any, error) {
	v, err := readValue(root, newEndianReader(data, order))
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root type %q is not a class", core.ErrMalformedContainer, root.Type)
	}
	return m, nil
}

type MapEntry struct {
	Key   any
	Value any
}

func readValue(n *TypeTreeNode, r *endianReader) (any, error) {
	var (
		v   any
		err error
	)
	align := n.aligned()

	switch n.Type {
	case "SInt8":
		var b uint8
		b, err = r.U8()
		v = int8(b)
	case "UInt8", "char":
		v, err = r.U8()
	case "bool":
		v, err = r.Bool()
	case "short", "SInt16":
		v, err = r.I16()
	case "UInt16", "unsigned short":
		v, err = r.U16()
	case "int", "SInt32":
		v, err = r.I32()
	case "UInt32", "unsigned int", "Type*":
		v, err = r.U32()
	case "long long", "SInt64":
		v, err = r.I64()
	case "UInt64", "unsigned long long", "FileSize":
		v, err = r.U64()
	case "float":
		var bits uint32
		bits, err = r.U32()
		v = math.Float32frombits(bits)
	case "double":
		var bits uint64
		bits, err = r.U64()
		v = math.Float64frombits(bits)
	case "string":
		var size int
		if size, err = r.Count(1); err != nil {
			break
		}
		var b []byte
		if b, err = r.Bytes(size); err != nil {
			break
		}
		v = string(b)
		if len(n.Children) > 0 && n.Children[0].aligned() {
			align = true
		}
	case "TypelessData":
		var size int
		if size, err = r.Count(1); err != nil {
			break
		}
		v, err = r.Bytes(size)
	case "map":
		v, err = readMap(n, r)
		if len(n.Children) > 0 && n.Children[0].aligned() {
			align = true
		}
	default:
		if len(n.Children) == 1 && n.Children[0].Type == "Array" {
			array := n.Children[0]
			v, err = readArray(array, r)
			if array.aligned() {
				align = true
			}
			break
		}
		if n.Type == "Array" {
			v, err = readArray(n, r)
			break
		}
		fields := make(map[string]any, len(n.Children))
		for _, c := range n.Children {
			var fv any
			if fv, err = readValue(c, r); err != nil {
				return nil, fmt.Errorf("%s: %w", n.Name, err)
			}
			fields[c.Name] = fv
		}
		v = fields
	}
	if err != nil {
		return nil, fmt.Errorf("%s (%s): %w", n.Name, n.Type, err)
	}
	if align {
		if err := r.Align(4); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// readArray reads an Array node: an int32 size child followed by size
// elements of the data child.
func readArray(array *TypeTreeNode, r *endianReader) ([]any, error) {
	if len(array.Children) != 2 {
		return nil, fmt.Errorf("%w: array %q has %d children", core.ErrMalformedContainer, array.Name, len(array.Children))
	}
	size, err := r.Count(1)
	if err != nil {
		return nil, err
	}
	elem := array.Children[1]
	if elem.Type == "UInt8" || elem.Type == "char" {
		b, err := r.Bytes(size)
		if err != nil {
			return nil, err
		}
		out := make([]any, size)
		for i := range b {
			out[i] = b[i]
		}
		return out, nil
	}
	out := make([]any, 0, size)
	for i := 0; i < size; i++ {
		v, err := readValue(elem, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readMap(n *TypeTreeNode, r *endianReader) ([]MapEntry, error) {
	if len(n.Children) != 1 || len(n.Children[0].Children) != 2 {
		return nil, fmt.Errorf("%w: malformed map %q", core.ErrMalformedContainer, n.Name)
	}
	pair := n.Children[0].Children[1]
	if len(pair.Children) != 2 {
		return nil, fmt.Errorf("%w: map %q pair has %d children", core.ErrMalformedContainer, n.Name, len(pair.Children))
	}
	size, err := r.Count(1)
	if err != nil {
		return nil, err
	}
	out := make([]MapEntry, 0, size)
	for i := 0; i < size; i++ {
		k, err := readValue(pair.Children[0], r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(pair.Children[1], r)
		if err != nil {
			return nil, err
		}
		out = append(out, MapEntry{Key: k, Value: v})
	}
	return out, nil
}
