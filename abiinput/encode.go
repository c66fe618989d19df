package abiinput

import (
	"encoding/binary"
	"fmt"
)

// Encode implements §4.F's encoding rules for a root call: 4-byte selector
// followed by the head/tail encoding of the argument tuple.
func Encode(r *Root) []byte {
	out := append([]byte(nil), r.Selector[:]...)
	return append(out, encodeTuple(r.Args)...)
}

// encodeTuple concatenates child head-encodings, resolving dynamic offsets
// against this tuple's own head_size (tuples are "head encoding only", so
// unlike Array there is no length prefix and no DynamicSize flag).
func encodeTuple(t *Tuple) []byte {
	headSize := 0
	for _, c := range t.Children {
		headSize += c.HeadSize()
	}
	var heads, tails []byte
	offset := headSize
	for _, c := range t.Children {
		h, tail := encodeNode(c, offset)
		heads = append(heads, h...)
		tails = append(tails, tail...)
		offset += len(tail)
	}
	return append(heads, tails...)
}

// encodeNode returns (this node's head bytes, this node's tail bytes) where
// `offsetFromHeadStart` is the cumulative offset (§4.F step 3: "cumulative
// offset = head_size + Σ prior tail sizes") to use if this node is dynamic.
func encodeNode(n Node, offsetFromHeadStart int) (head, tail []byte) {
	switch v := n.(type) {
	case *Fixed256:
		return append([]byte(nil), v.Bytes[:]...), nil
	case EmptyLeaf:
		return nil, nil
	case *Dynamic:
		offHead := make([]byte, 32)
		binary.BigEndian.PutUint64(offHead[24:], uint64(offsetFromHeadStart))
		return offHead, encodeDynamicTail(v)
	case *Array:
		if v.IsStatic() {
			return encodeArrayBody(v), nil
		}
		offHead := make([]byte, 32)
		binary.BigEndian.PutUint64(offHead[24:], uint64(offsetFromHeadStart))
		return offHead, encodeArrayTail(v)
	case *Tuple:
		if v.IsStatic() {
			return encodeTuple(v), nil
		}
		// Dynamic tuples behave like a fixed-size-1 dynamic array element for
		// offset purposes: the head carries an offset, the tail carries the
		// full head/tail encoding of the tuple.
		offHead := make([]byte, 32)
		binary.BigEndian.PutUint64(offHead[24:], uint64(offsetFromHeadStart))
		return offHead, encodeTuple(v)
	default:
		panic(fmt.Sprintf("abiinput: unknown node type %T", n))
	}
}

// encodeDynamicTail emits the length-prefixed, alignment-padded payload for
// a Dynamic leaf (§4.F: "Dynamic → ceil(len/alignment)*alignment bytes
// preceded by a 32-byte length").
func encodeDynamicTail(d *Dynamic) []byte {
	lenBuf := make([]byte, 32)
	binary.BigEndian.PutUint64(lenBuf[24:], uint64(len(d.Bytes)))
	body := make([]byte, padded(len(d.Bytes), int(d.Alignment)))
	copy(body, d.Bytes)
	return append(lenBuf, body...)
}

// encodeArrayBody encodes a static-size array's children as a flat
// concatenation of their head encodings (no offsets needed: every child is
// static).
func encodeArrayBody(a *Array) []byte {
	var out []byte
	for _, c := range a.Children {
		h, _ := encodeNode(c, 0)
		out = append(out, h...)
	}
	return out
}

// encodeArrayTail implements §4.F steps 1-5 for a dynamic-size array or a
// static-size array containing dynamic children.
func encodeArrayTail(a *Array) []byte {
	headSize := 0
	for _, c := range a.Children {
		headSize += c.HeadSize()
	}
	var heads, tails []byte
	offset := headSize
	for _, c := range a.Children {
		h, tail := encodeNode(c, offset)
		heads = append(heads, h...)
		tails = append(tails, tail...)
		offset += len(tail)
	}
	body := append(heads, tails...)
	if a.DynamicSize {
		lenBuf := make([]byte, 32)
		binary.BigEndian.PutUint64(lenBuf[24:], uint64(len(a.Children)))
		return append(lenBuf, body...)
	}
	return body
}
