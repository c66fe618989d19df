// Package abiinput implements the ABI value tree (§4.F): a typed
// representation of a function argument that can be mutated at the leaves
// and re-encoded to bytes, using the same head/tail splitting rules as the
// Ethereum ABI.
package abiinput

// Alignment is the byte alignment a Dynamic leaf's length-prefixed payload is
// padded to.
type Alignment int

const (
	// Align1 packs bytes with no padding beyond the encoded length itself
	// (used for raw "bytes" payloads whose content is opaque to mutation).
	Align1 Alignment = 1
	// Align32 pads to the standard EVM word size (used for ABI "bytes"/"string").
	Align32 Alignment = 32
)

// Node is the sum type of §4.F: Fixed256 | Dynamic | Array | Tuple | EmptyLeaf.
type Node interface {
	// IsStatic reports whether the node (and everything below it) is free of
	// dynamic descendants.
	IsStatic() bool
	// HeadSize is the number of bytes this node contributes to the
	// head-encoding of its parent (32 for a Fixed256 leaf or any dynamic
	// node referenced by offset, 0 for EmptyLeaf, the sum of the children's
	// head sizes for a static tuple/array).
	HeadSize() int
	// TailSize is the number of bytes this node contributes to the
	// tail-encoding of its parent (0 for static nodes).
	TailSize() int
	clone() Node
}

// Clone deep-copies a Node so mutation never aliases the original tree.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	return n.clone()
}

// Fixed256 is a left zero-padded 32-byte value (uint256, address, bool, ...).
type Fixed256 struct {
	Bytes [32]byte
}

func (f *Fixed256) IsStatic() bool  { return true }
func (f *Fixed256) HeadSize() int   { return 32 }
func (f *Fixed256) TailSize() int   { return 0 }
func (f *Fixed256) clone() Node {
	cp := *f
	return &cp
}

// Dynamic is a length-prefixed, alignment-padded byte string ("bytes"/"string").
type Dynamic struct {
	Bytes     []byte
	Alignment Alignment
}

func (d *Dynamic) IsStatic() bool { return false }
func (d *Dynamic) HeadSize() int  { return 32 } // offset placeholder in the parent's head
func (d *Dynamic) TailSize() int {
	return 32 + padded(len(d.Bytes), int(d.Alignment))
}
func (d *Dynamic) clone() Node {
	return &Dynamic{Bytes: append([]byte(nil), d.Bytes...), Alignment: d.Alignment}
}

func padded(n, align int) int {
	if align <= 0 {
		align = 1
	}
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

// Array is a static- or dynamic-size ordered sequence of homogeneous children.
type Array struct {
	Children    []Node
	DynamicSize bool
	// Prototype is used by the duplicate-child mutation (§4.F) when the
	// array is empty and a template element is needed.
	Prototype Node
}

func (a *Array) IsStatic() bool {
	if a.DynamicSize {
		return false
	}
	for _, c := range a.Children {
		if !c.IsStatic() {
			return false
		}
	}
	return true
}

func (a *Array) HeadSize() int {
	if !a.IsStatic() {
		return 32 // offset placeholder
	}
	sum := 0
	for _, c := range a.Children {
		sum += c.HeadSize()
	}
	return sum
}

func (a *Array) TailSize() int {
	if a.IsStatic() {
		return 0
	}
	sum := 0
	for _, c := range a.Children {
		sum += c.HeadSize()
	}
	for _, c := range a.Children {
		sum += c.TailSize()
	}
	if a.DynamicSize {
		sum += 32 // length prefix
	}
	return sum
}

func (a *Array) clone() Node {
	cp := &Array{DynamicSize: a.DynamicSize}
	for _, c := range a.Children {
		cp.Children = append(cp.Children, Clone(c))
	}
	if a.Prototype != nil {
		cp.Prototype = Clone(a.Prototype)
	}
	return cp
}

// Tuple is a head-encoded-only concatenation of children (a struct/solidity tuple).
type Tuple struct {
	Children []Node
}

func (tu *Tuple) IsStatic() bool {
	for _, c := range tu.Children {
		if !c.IsStatic() {
			return false
		}
	}
	return true
}

func (tu *Tuple) HeadSize() int {
	sum := 0
	for _, c := range tu.Children {
		sum += c.HeadSize()
	}
	return sum
}

func (tu *Tuple) TailSize() int {
	sum := 0
	for _, c := range tu.Children {
		sum += c.TailSize()
	}
	return sum
}

func (tu *Tuple) clone() Node {
	cp := &Tuple{}
	for _, c := range tu.Children {
		cp.Children = append(cp.Children, Clone(c))
	}
	return cp
}

// EmptyLeaf marks an argument slot with no payload (e.g. a no-arg selector).
type EmptyLeaf struct{}

func (EmptyLeaf) IsStatic() bool { return true }
func (EmptyLeaf) HeadSize() int  { return 0 }
func (EmptyLeaf) TailSize() int  { return 0 }
func (e EmptyLeaf) clone() Node  { return EmptyLeaf{} }

// Root wraps the top-level argument tuple of a function call together with
// its 4-byte selector (§3: "selector (4-byte function selector when at the
// root)").
type Root struct {
	Selector [4]byte
	Args     *Tuple
}

// Clone deep-copies a Root.
func (r *Root) Clone() *Root {
	if r == nil {
		return nil
	}
	return &Root{Selector: r.Selector, Args: r.Args.clone().(*Tuple)}
}
