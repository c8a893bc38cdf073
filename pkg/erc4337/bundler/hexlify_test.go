package bundler

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
)

func TestDeepHexlifyScalars(t *testing.T) {
	assert.Nil(t, DeepHexlify(nil))
	assert.Equal(t, "plain", DeepHexlify("plain"))
	assert.Equal(t, true, DeepHexlify(true))
	assert.Equal(t, "0x0", DeepHexlify(big.NewInt(0)))
	assert.Equal(t, "0xff", DeepHexlify(big.NewInt(255)))
	assert.Equal(t, "0x10", DeepHexlify(16))
	assert.Equal(t, "0x2a", DeepHexlify(uint64(42)))
	assert.Equal(t, "0x2a", DeepHexlify((*hexutil.Big)(big.NewInt(42))))
	assert.Equal(t, "0x000102", DeepHexlify([]byte{0, 1, 2}))
	assert.Equal(t, "0x", DeepHexlify([]byte{}))
	assert.Equal(t, common.HexToHash("0x01").Hex(), DeepHexlify(common.HexToHash("0x01")))
	assert.Equal(t, common.HexToAddress("0xab").Hex(), DeepHexlify(common.HexToAddress("0xab")))
	assert.Nil(t, DeepHexlify((*big.Int)(nil)))
}

func TestDeepHexlifyNested(t *testing.T) {
	type inner struct {
		Gas    *big.Int `json:"gas"`
		Hidden string   `json:"-"`
		Raw    [4]byte
	}
	in := map[string]interface{}{
		"list":     []interface{}{big.NewInt(1), "x", func() {}},
		"callback": func() {},
		"inner":    inner{Gas: big.NewInt(21000), Hidden: "no", Raw: [4]byte{0xde, 0xad, 0xbe, 0xef}},
		"flags":    map[string]bool{"ok": true},
	}

	out := DeepHexlify(in).(map[string]interface{})

	assert.NotContains(t, out, "callback")
	assert.Equal(t, []interface{}{"0x1", "x"}, out["list"])
	assert.Equal(t, map[string]interface{}{"gas": "0x5208", "Raw": "0xdeadbeef"}, out["inner"])
	assert.Equal(t, map[string]interface{}{"ok": true}, out["flags"])
}
