// Package ethtx builds, signs, and submits legacy transactions through an
// injected RPC backend and signer.
package ethtx

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/signer"
)

// rpcTimeout bounds chain RPC calls so a wedged node cannot hang the
// pipeline indefinitely.
const rpcTimeout = 15 * time.Second

// Backend is the slice of an RPC client the sender needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account gcommon.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gtypes.Transaction) error
}

// Sender submits signed transactions and waits for receipts.
type Sender struct {
	backend   Backend
	signer    signer.Signer
	chainID   *big.Int
	logger    *logrus.Logger
	waitMined func(ctx context.Context, backend bind.DeployBackend, tx *gtypes.Transaction) (*gtypes.Receipt, error)
}

func NewSender(backend Backend, sgn signer.Signer, chainID *big.Int, logger *logrus.Logger) (*Sender, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if sgn == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain ID")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sender{
		backend:   backend,
		signer:    sgn,
		chainID:   chainID,
		logger:    logger,
		waitMined: bind.WaitMined,
	}, nil
}

func (s *Sender) From() gcommon.Address { return s.signer.Address() }

// Submit signs and broadcasts a transaction and returns as soon as the node
// accepts it; confirmation is the caller's concern.
func (s *Sender) Submit(ctx context.Context, to gcommon.Address, data []byte, value *big.Int, gasLimit uint64, gasPriceWei *big.Int) (*gtypes.Transaction, error) {
	nonceCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	nonce, err := s.backend.PendingNonceAt(nonceCtx, s.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("fail to fetch nonce: %w", err)
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if gasPriceWei == nil {
		gasPriceWei = big.NewInt(0)
	}

	tx := gtypes.NewTransaction(nonce, to, value, gasLimit, gasPriceWei, data)
	signed, err := s.signer.SignTx(tx, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("fail to sign transaction: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	if err := s.backend.SendTransaction(sendCtx, signed); err != nil {
		return nil, fmt.Errorf("fail to send transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"to":      to.Hex(),
		"nonce":   nonce,
	}).Info("transaction submitted")
	return signed, nil
}

// WaitMined blocks until the transaction is mined. This is the one
// deliberately long-blocking call in the pipeline; callers run it detached
// from the request path.
func (s *Sender) WaitMined(ctx context.Context, tx *gtypes.Transaction) (*gtypes.Receipt, error) {
	receipt, err := s.waitMined(ctx, s.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("fail to wait for transaction to be mined: %w", err)
	}
	return receipt, nil
}
