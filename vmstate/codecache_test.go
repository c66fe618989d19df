package vmstate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestCodeCacheRoundTrips(t *testing.T) {
	c := NewCodeCache(1 << 20)
	addr := common.HexToAddress("0xaa")

	_, ok := c.Get(addr)
	require.False(t, ok)

	code := []byte{0x60, 0x00, 0x60, 0x00}
	c.Set(addr, code)

	got, ok := c.Get(addr)
	require.True(t, ok)
	require.Equal(t, code, got)
}

func TestCodeCacheDistinguishesAddresses(t *testing.T) {
	c := NewCodeCache(1 << 20)
	a1 := common.HexToAddress("0x1")
	a2 := common.HexToAddress("0x2")

	c.Set(a1, []byte{0x01})
	c.Set(a2, []byte{0x02})

	got1, _ := c.Get(a1)
	got2, _ := c.Get(a2)
	require.Equal(t, []byte{0x01}, got1)
	require.Equal(t, []byte{0x02}, got2)
}
