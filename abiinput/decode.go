package abiinput

import (
	"encoding/binary"
	"fmt"
)

// Decode decodes `data` against `schema`, a template tree describing the
// expected shape (which fields are Fixed256 vs Dynamic vs Array vs Tuple,
// and array element prototypes). ABI bytes carry no type tags of their own,
// so — as in go-ethereum's accounts/abi package — the caller must already
// know the function signature; here the schema plays that role.
//
// Decode(Encode(v)) is tree-equal to v for static trees (§8 property 6).
func Decode(schema *Root, data []byte) (*Root, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("abiinput: payload too short for selector")
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	args, err := decodeTuple(schema.Args, data[4:])
	if err != nil {
		return nil, err
	}
	return &Root{Selector: sel, Args: args}, nil
}

func decodeTuple(schema *Tuple, data []byte) (*Tuple, error) {
	out := &Tuple{}
	offset := 0
	for _, childSchema := range schema.Children {
		n, err := decodeNode(childSchema, data, offset)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, n)
		offset += childSchema.HeadSize()
	}
	return out, nil
}

func decodeNode(schema Node, data []byte, headOffset int) (Node, error) {
	switch s := schema.(type) {
	case *Fixed256:
		if headOffset+32 > len(data) {
			return nil, fmt.Errorf("abiinput: truncated fixed256 at %d", headOffset)
		}
		var f Fixed256
		copy(f.Bytes[:], data[headOffset:headOffset+32])
		return &f, nil
	case EmptyLeaf:
		return EmptyLeaf{}, nil
	case *Dynamic:
		off, err := readOffset(data, headOffset)
		if err != nil {
			return nil, err
		}
		return decodeDynamicAt(data, off, s.Alignment)
	case *Array:
		if s.IsStatic() {
			return decodeArrayBodyAt(s, data, headOffset)
		}
		off, err := readOffset(data, headOffset)
		if err != nil {
			return nil, err
		}
		return decodeArrayTailAt(s, data, off)
	case *Tuple:
		if s.IsStatic() {
			return decodeTupleAt(s, data, headOffset)
		}
		off, err := readOffset(data, headOffset)
		if err != nil {
			return nil, err
		}
		return decodeTuple(s, data[off:])
	default:
		return nil, fmt.Errorf("abiinput: unknown schema node %T", schema)
	}
}

func decodeTupleAt(schema *Tuple, data []byte, offset int) (*Tuple, error) {
	out := &Tuple{}
	cur := offset
	for _, childSchema := range schema.Children {
		n, err := decodeNode(childSchema, data, cur)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, n)
		cur += childSchema.HeadSize()
	}
	return out, nil
}

func readOffset(data []byte, at int) (int, error) {
	if at+32 > len(data) {
		return 0, fmt.Errorf("abiinput: truncated offset word at %d", at)
	}
	return int(binary.BigEndian.Uint64(data[at+24 : at+32])), nil
}

func decodeDynamicAt(data []byte, at int, align Alignment) (*Dynamic, error) {
	if at+32 > len(data) {
		return nil, fmt.Errorf("abiinput: truncated dynamic length at %d", at)
	}
	length := int(binary.BigEndian.Uint64(data[at+24 : at+32]))
	start := at + 32
	if start+length > len(data) {
		return nil, fmt.Errorf("abiinput: truncated dynamic payload at %d (len %d)", start, length)
	}
	return &Dynamic{Bytes: append([]byte(nil), data[start:start+length]...), Alignment: align}, nil
}

func decodeArrayBodyAt(schema *Array, data []byte, offset int) (*Array, error) {
	out := &Array{DynamicSize: false, Prototype: schema.Prototype}
	cur := offset
	for _, childSchema := range schema.Children {
		n, err := decodeNode(childSchema, data, cur)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, n)
		cur += childSchema.HeadSize()
	}
	return out, nil
}

func decodeArrayTailAt(schema *Array, data []byte, at int) (*Array, error) {
	out := &Array{DynamicSize: schema.DynamicSize, Prototype: schema.Prototype}
	cur := at
	count := len(schema.Children)
	if schema.DynamicSize {
		if at+32 > len(data) {
			return nil, fmt.Errorf("abiinput: truncated array length at %d", at)
		}
		count = int(binary.BigEndian.Uint64(data[at+24 : at+32]))
		cur = at + 32
	}
	proto := schema.Prototype
	if proto == nil && len(schema.Children) > 0 {
		proto = schema.Children[0]
	}
	headStart := cur
	for i := 0; i < count; i++ {
		var childSchema Node
		if i < len(schema.Children) {
			childSchema = schema.Children[i]
		} else {
			childSchema = proto
		}
		if childSchema == nil {
			return nil, fmt.Errorf("abiinput: array element %d has no schema/prototype", i)
		}
		n, err := decodeNode(childSchema, data, headStart+i*childSchema.HeadSize())
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, n)
	}
	return out, nil
}
