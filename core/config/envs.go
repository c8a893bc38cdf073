package config

import "math/big"

// Chain is a network the SDK has explorer links for.
type Chain struct {
	Name        string
	ExplorerURL string
}

var (
	MainnetChainID     = big.NewInt(1)
	SepoliaChainID     = big.NewInt(11155111)
	BaseChainID        = big.NewInt(8453)
	BaseSepoliaChainID = big.NewInt(84532)
)

var knownChains = map[int64]Chain{
	1:        {Name: "ethereum", ExplorerURL: "https://etherscan.io"},
	11155111: {Name: "sepolia", ExplorerURL: "https://sepolia.etherscan.io"},
	8453:     {Name: "base", ExplorerURL: "https://basescan.org"},
	84532:    {Name: "base-sepolia", ExplorerURL: "https://sepolia.basescan.org"},
}

func LookupChain(chainID *big.Int) (Chain, bool) {
	if chainID == nil || !chainID.IsInt64() {
		return Chain{}, false
	}
	c, ok := knownChains[chainID.Int64()]
	return c, ok
}

// TxURL links a transaction on the chain's explorer, or returns "" for an
// unknown chain.
func TxURL(chainID *big.Int, txHash string) string {
	c, ok := LookupChain(chainID)
	if !ok {
		return ""
	}
	return c.ExplorerURL + "/tx/" + txHash
}

func IsMainnet(chainID *big.Int) bool {
	return chainID != nil && (chainID.Cmp(MainnetChainID) == 0 || chainID.Cmp(BaseChainID) == 0)
}
