package abiinput

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixed(v byte) *Fixed256 {
	var f Fixed256
	f.Bytes[31] = v
	return &f
}

func TestRoundTripStaticTuple(t *testing.T) {
	schema := &Root{
		Selector: Selector("transfer(address,uint256)"),
		Args: &Tuple{Children: []Node{
			fixed(1),
			fixed(2),
		}},
	}
	encoded := Encode(schema)
	decoded, err := Decode(schema, encoded)
	require.NoError(t, err)
	require.Equal(t, schema.Args.Children[0].(*Fixed256).Bytes, decoded.Args.Children[0].(*Fixed256).Bytes)
	require.Equal(t, schema.Args.Children[1].(*Fixed256).Bytes, decoded.Args.Children[1].(*Fixed256).Bytes)
}

func TestRoundTripDynamic(t *testing.T) {
	root := &Root{
		Selector: Selector("setData(bytes)"),
		Args: &Tuple{Children: []Node{
			&Dynamic{Bytes: []byte("hello world, this is a longer payload"), Alignment: Align32},
		}},
	}
	encoded := Encode(root)

	headSize := root.Args.HeadSize()
	tailSize := root.Args.TailSize()
	require.Equal(t, 4+headSize+tailSize, len(encoded))

	decoded, err := Decode(root, encoded)
	require.NoError(t, err)
	require.Equal(t, root.Args.Children[0].(*Dynamic).Bytes, decoded.Args.Children[0].(*Dynamic).Bytes)
}

func TestRoundTripDynamicArray(t *testing.T) {
	root := &Root{
		Selector: Selector("batch(uint256[])"),
		Args: &Tuple{Children: []Node{
			&Array{DynamicSize: true, Prototype: fixed(0), Children: []Node{fixed(1), fixed(2), fixed(3)}},
		}},
	}
	encoded := Encode(root)
	require.Equal(t, 4+root.Args.HeadSize()+root.Args.TailSize(), len(encoded))

	decoded, err := Decode(root, encoded)
	require.NoError(t, err)
	arr := decoded.Args.Children[0].(*Array)
	require.Len(t, arr.Children, 3)
	for i, c := range arr.Children {
		require.Equal(t, root.Args.Children[0].(*Array).Children[i].(*Fixed256).Bytes, c.(*Fixed256).Bytes)
	}
}

func TestEmptyDynamicArrayTailIsLengthPrefixOnly(t *testing.T) {
	arr := &Array{DynamicSize: true, Prototype: fixed(0)}
	require.Equal(t, 32, arr.TailSize()) // just the length prefix
}

func TestMutateNodeReportsChange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	f := fixed(5)
	before := f.Bytes
	changed := MutateNode(r, f, nil, nil, 0.05, 0)
	require.True(t, changed)
	require.NotEqual(t, before, f.Bytes)
}

func TestMutateArrayDuplicatesPrototype(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	arr := &Array{DynamicSize: true, Prototype: fixed(9)}
	// Force the duplicate path by using an empty children slice and prob 0.
	changed := MutateNode(r, arr, nil, nil, 0.0, 10)
	require.True(t, changed)
	require.Len(t, arr.Children, 1)
}
