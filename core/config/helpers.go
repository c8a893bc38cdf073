package config

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

func convertToAddressMap(addresses map[string]string) map[string]common.Address {
	return lo.MapValues(addresses, func(addr string, _ string) common.Address {
		return common.HexToAddress(addr)
	})
}

func addressOr(hex string, fallback common.Address) common.Address {
	if hex == "" {
		return fallback
	}
	return common.HexToAddress(hex)
}

func optionalAddress(hex string) *common.Address {
	if hex == "" {
		return nil
	}
	addr := common.HexToAddress(hex)
	return &addr
}
