package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"
)

// Signer produces secp256k1 signatures with v in {27, 28}.
type Signer interface {
	Address() common.Address
	// SignMessage signs data with the EIP-191 personal message prefix.
	SignMessage(data []byte) ([]byte, error)
	// SignDigest signs a 32 byte digest as is.
	SignDigest(digest common.Hash) ([]byte, error)
}

// PrivateKeySigner signs with an in-memory key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func FromPrivateKeyHex(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPrivateKeySigner(privateKey), nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) SignMessage(data []byte) ([]byte, error) {
	return SignMessage(s.key, data)
}

func (s *PrivateKeySigner) SignDigest(digest common.Hash) ([]byte, error) {
	return signDigest(s.key, digest)
}

// PublicKeyHex returns the uncompressed public key, 0x prefixed.
func (s *PrivateKeySigner) PublicKeyHex() string {
	return "0x" + common.Bytes2Hex(crypto.FromECDSAPub(&s.key.PublicKey))
}

// EIP191Hash returns keccak256("\x19Ethereum Signed Message:\n" + len(data) + data).
func EIP191Hash(data []byte) common.Hash {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	return crypto.Keccak256Hash(prefix, data)
}

// Generate EIP191 signature
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	return signDigest(key, EIP191Hash(data))
}

func SignMessageAsHex(key *ecdsa.PrivateKey, data []byte) (string, error) {
	signature, e := SignMessage(key, data)
	if e != nil {
		return "", e
	}
	return "0x" + common.Bytes2Hex(signature), nil
}

// RecoverMessageSigner returns the address that produced an EIP-191 signature.
func RecoverMessageSigner(data, signature []byte) (common.Address, error) {
	return recoverDigest(EIP191Hash(data), signature)
}

// SignTypedData hashes td per EIP-712 and signs the digest.
func SignTypedData(s Signer, td apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return s.SignDigest(common.BytesToHash(digest))
}

// RecoverTypedDataSigner returns the address that signed td.
func RecoverTypedDataSigner(td apitypes.TypedData, signature []byte) (common.Address, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, fmt.Errorf("hash typed data: %w", err)
	}
	return recoverDigest(common.BytesToHash(digest), signature)
}

func signDigest(key *ecdsa.PrivateKey, digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	// https://stackoverflow.com/questions/69762108/implementing-ethereum-personal-sign-eip-191-from-go-ethereum-gives-different-s
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func recoverDigest(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	sig := common.CopyBytes(signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
