// Package signer is the wallet boundary: the engine only ever sees this
// interface, so which wallet implementation provides it is irrelevant to
// the swap pipeline.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer can report its address and sign transactions.
type Signer interface {
	Address() gcommon.Address
	SignTx(tx *gtypes.Transaction, chainID *big.Int) (*gtypes.Transaction, error)
}

// LocalSigner signs with an in-process private key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address gcommon.Address
}

// NewLocalSigner parses a hex-encoded private key.
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("fail to parse private key: %w", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *LocalSigner) Address() gcommon.Address {
	return s.address
}

func (s *LocalSigner) SignTx(tx *gtypes.Transaction, chainID *big.Int) (*gtypes.Transaction, error) {
	signed, err := gtypes.SignTx(tx, gtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("fail to sign transaction: %w", err)
	}
	return signed, nil
}
