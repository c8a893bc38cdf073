package abischema

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	s := MustNew(
		Param{Name: "owner", Type: "address"},
		Param{Name: "amount", Type: "uint256"},
		Param{Name: "payload", Type: "bytes"},
	)

	owner := common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	encoded, err := s.Encode(owner, big.NewInt(42), []byte{0xde, 0xad})
	require.NoError(t, err)
	// head (3 words) + length word + padded data word
	assert.Len(t, encoded, 5*32)

	values, err := s.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, owner, values[0])
	assert.Equal(t, 0, big.NewInt(42).Cmp(values[1].(*big.Int)))
	assert.Equal(t, []byte{0xde, 0xad}, values[2])

	m, err := s.DecodeMap(encoded)
	require.NoError(t, err)
	assert.Equal(t, owner, m["owner"])
}

func TestEncodeRejectsWrongArity(t *testing.T) {
	s := MustParse("uint48 validUntil, uint48 validAfter")
	_, err := s.Encode(big.NewInt(1))
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	s, err := Parse("address, address, string walletId")
	require.NoError(t, err)
	assert.Equal(t, "(address,address,string walletId)", s.String())
	assert.Len(t, s.Params(), 3)

	_, err = Parse("uint256 a b")
	assert.Error(t, err)

	_, err = Parse("notatype x")
	assert.Error(t, err)
}
