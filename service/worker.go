package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	gcommon "github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/settlement"
	"github.com/spendsave/savings-engine/internal/tasks"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage"
)

// TxFetcher is the transaction-lookup slice of an RPC client.
// *ethclient.Client satisfies it.
type TxFetcher interface {
	TransactionByHash(ctx context.Context, hash gcommon.Hash) (*gtypes.Transaction, bool, error)
}

// DCAProcessor drains queued DCA executions. *dca.Client satisfies it.
type DCAProcessor interface {
	ProcessQueued(ctx context.Context, user gcommon.Address, maxCount uint64) error
}

// WorkerService consumes settlement and DCA tasks off the queue. It is the
// only place swap records transition out of PENDING.
type WorkerService struct {
	logger   *logrus.Logger
	sdClient statsd.ClientInterface
	fetcher  TxFetcher
	settler  *settlement.Validator
	dca      DCAProcessor
	db       storage.SwapRepository
}

func NewWorker(fetcher TxFetcher, settler *settlement.Validator, dcaProcessor DCAProcessor, db storage.SwapRepository, sdClient statsd.ClientInterface, logger *logrus.Logger) (*WorkerService, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("tx fetcher cannot be nil")
	}
	if settler == nil {
		return nil, fmt.Errorf("settlement validator cannot be nil")
	}
	if sdClient == nil {
		sdClient = &statsd.NoOpClient{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WorkerService{
		logger:   logger,
		sdClient: sdClient,
		fetcher:  fetcher,
		settler:  settler,
		dca:      dcaProcessor,
		db:       db,
	}, nil
}

// Register binds the worker's handlers onto an asynq mux.
func (w *WorkerService) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeSettlementValidate, w.HandleSettlementTask)
	mux.HandleFunc(tasks.TypeDCAProcess, w.HandleDCATask)
}

// HandleSettlementTask confirms a submitted swap and writes the outcome to
// the history record. A transaction the node no longer knows is recorded as
// rejected rather than retried forever.
func (w *WorkerService) HandleSettlementTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("fail to unmarshal settlement payload: %w", err)
	}

	logger := w.logger.WithFields(logrus.Fields{
		"swap_id": payload.SwapID,
		"tx_hash": payload.TxHash,
	})

	tx, _, err := w.fetcher.TransactionByHash(ctx, gcommon.HexToHash(payload.TxHash))
	if err != nil {
		logger.WithError(err).Warn("transaction not found, marking rejected")
		w.updateRecord(ctx, payload.TxHash, types.StatusRejected, map[string]interface{}{
			"settlement_error": err.Error(),
		})
		_ = w.sdClient.Incr("worker.settlement.rejected", nil, 1)
		return nil
	}

	result := w.settler.Validate(ctx, tx)

	status := types.StatusMined
	if result.Error != "" {
		status = types.StatusFailed
	}
	w.updateRecord(ctx, payload.TxHash, status, map[string]interface{}{
		"settled":          result.Settled,
		"hook_executed":    result.HookExecuted,
		"gas_optimized":    result.GasOptimized,
		"gas_used":         result.GasUsed,
		"settlement_error": result.Error,
	})

	logger.WithFields(logrus.Fields{
		"settled":       result.Settled,
		"hook_executed": result.HookExecuted,
		"status":        status,
	}).Info("settlement task finished")
	_ = w.sdClient.Incr("worker.settlement.processed", []string{"status:" + string(status)}, 1)
	return nil
}

// HandleDCATask drains up to MaxCount queued DCA entries for one user.
func (w *WorkerService) HandleDCATask(ctx context.Context, t *asynq.Task) error {
	if w.dca == nil {
		return fmt.Errorf("dca processor not configured")
	}
	var payload tasks.DCAPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("fail to unmarshal dca payload: %w", err)
	}
	if !gcommon.IsHexAddress(payload.UserAddress) {
		return fmt.Errorf("invalid user address %s", payload.UserAddress)
	}

	maxCount := payload.MaxCount
	if maxCount == 0 {
		maxCount = 1
	}
	if err := w.dca.ProcessQueued(ctx, gcommon.HexToAddress(payload.UserAddress), maxCount); err != nil {
		_ = w.sdClient.Incr("worker.dca.failed", nil, 1)
		return fmt.Errorf("fail to process dca queue: %w", err)
	}
	_ = w.sdClient.Incr("worker.dca.processed", nil, 1)
	return nil
}

func (w *WorkerService) updateRecord(ctx context.Context, txHash string, status types.TransactionStatus, metadata map[string]interface{}) {
	if w.db == nil {
		return
	}
	if err := w.db.UpdateSwapStatusByHash(ctx, txHash, status, metadata); err != nil {
		w.logger.WithError(err).WithField("tx_hash", txHash).Error("fail to update swap record")
	}
}
