package signer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AuthSignature is the login proof sent to the account backend.
type AuthSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	Domain    string `json:"domain"`
}

// AuthMessage is the lowercased "domain:timestamp:publicKey" login message.
func AuthMessage(domain string, timestamp int64, publicKey string) string {
	return strings.ToLower(fmt.Sprintf("%s:%d:%s", domain, timestamp, publicKey))
}

func SignAuthMessage(s Signer, domain string, timestamp int64, publicKey string) (*AuthSignature, error) {
	sig, err := s.SignMessage([]byte(AuthMessage(domain, timestamp, publicKey)))
	if err != nil {
		return nil, err
	}
	return &AuthSignature{
		Signature: "0x" + common.Bytes2Hex(sig),
		Timestamp: timestamp,
		Domain:    domain,
	}, nil
}

// RecoverAuthSigner returns the address that signed an auth message.
func RecoverAuthSigner(domain string, timestamp int64, publicKey string, signature []byte) (common.Address, error) {
	return RecoverMessageSigner([]byte(AuthMessage(domain, timestamp, publicKey)), signature)
}
