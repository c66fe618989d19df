package abiinput

import (
	"math/rand"
)

// LeafMutator enumerates the byte-level mutation primitives of §4.F.
type LeafMutator int

const (
	BitFlip LeafMutator = iota
	ByteAdd
	InterestingValue
	GaussianScale
	ConstantInject
	VMStateSlotInject
)

var interestingBytes = []byte{0x00, 0x01, 0x7f, 0x80, 0xff}

// MutateLeaf applies one of the byte-level primitives to a Fixed256 leaf in
// place. `constants` is the constant pool (§3) harvested from PUSH
// immediates; `slot` is a candidate 32-byte value harvested from VM storage,
// used by VMStateSlotInject.
func MutateLeaf(r *rand.Rand, f *Fixed256, which LeafMutator, constants [][]byte, slot *[32]byte) {
	switch which {
	case BitFlip:
		i := r.Intn(32)
		bit := uint(r.Intn(8))
		f.Bytes[i] ^= 1 << bit
	case ByteAdd:
		i := r.Intn(32)
		delta := byte(r.Intn(35) - 17) // [-17, 17]
		f.Bytes[i] += delta
	case InterestingValue:
		i := r.Intn(32)
		f.Bytes[i] = interestingBytes[r.Intn(len(interestingBytes))]
	case GaussianScale:
		i := r.Intn(32)
		scale := 1 + r.NormFloat64()*0.25
		v := float64(f.Bytes[i]) * scale
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		f.Bytes[i] = byte(v)
	case ConstantInject:
		if len(constants) == 0 {
			return
		}
		c := constants[r.Intn(len(constants))]
		if len(c) > 32 {
			c = c[len(c)-32:]
		}
		copy(f.Bytes[32-len(c):], c)
	case VMStateSlotInject:
		if slot != nil {
			f.Bytes = *slot
		}
	}
}

// MutateDynamic expands or contracts a Dynamic leaf's payload bytewise
// (§4.F "For dynamic leaves: expansion/contraction bytewise").
func MutateDynamic(r *rand.Rand, d *Dynamic, maxSize int) {
	grow := r.Intn(2) == 0
	if grow && (maxSize <= 0 || len(d.Bytes) < maxSize) {
		b := byte(r.Intn(256))
		pos := 0
		if len(d.Bytes) > 0 {
			pos = r.Intn(len(d.Bytes) + 1)
		}
		d.Bytes = append(d.Bytes[:pos], append([]byte{b}, d.Bytes[pos:]...)...)
		return
	}
	if len(d.Bytes) > 0 {
		pos := r.Intn(len(d.Bytes))
		d.Bytes = append(d.Bytes[:pos], d.Bytes[pos+1:]...)
	}
}

// MutateNode recurses into a node and applies exactly one mutation,
// returning whether anything actually changed (§4.G: sub-mutations report
// "mutated" or are skipped).
func MutateNode(r *rand.Rand, n Node, constants [][]byte, slot *[32]byte, dupProb float64, maxSize int) bool {
	switch v := n.(type) {
	case *Fixed256:
		before := v.Bytes
		MutateLeaf(r, v, LeafMutator(r.Intn(int(VMStateSlotInject)+1)), constants, slot)
		return v.Bytes != before
	case *Dynamic:
		before := append([]byte(nil), v.Bytes...)
		MutateDynamic(r, v, maxSize)
		return string(v.Bytes) != string(before)
	case *Array:
		if len(v.Children) > 0 && r.Float64() >= dupProb {
			i := r.Intn(len(v.Children))
			return MutateNode(r, v.Children[i], constants, slot, dupProb, maxSize)
		}
		// Duplicate the prototype child (dynamic arrays only), size-bounded.
		if v.DynamicSize && (maxSize <= 0 || len(v.Children) < maxSize) {
			proto := v.Prototype
			if proto == nil && len(v.Children) > 0 {
				proto = v.Children[0]
			}
			if proto != nil {
				v.Children = append(v.Children, Clone(proto))
				return true
			}
		}
		return false
	case *Tuple:
		if len(v.Children) == 0 {
			return false
		}
		i := r.Intn(len(v.Children))
		return MutateNode(r, v.Children[i], constants, slot, dupProb, maxSize)
	case EmptyLeaf:
		return false
	default:
		return false
	}
}
