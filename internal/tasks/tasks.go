// Package tasks defines the asynq task types exchanged between the API
// process and the worker.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeSettlementValidate = "settlement:validate"
	TypeDCAProcess         = "dca:process"

	QueueSettlement = "settlement"
	QueueDCA        = "dca"
)

// SettlementPayload identifies a submitted swap awaiting confirmation.
type SettlementPayload struct {
	SwapID      string `json:"swap_id"`
	TxHash      string `json:"tx_hash"`
	UserAddress string `json:"user_address"`
	SubmittedAt int64  `json:"submitted_at"`
}

// NewSettlementTask builds the settlement-validation task for a swap.
func NewSettlementTask(swapID, txHash, userAddress string) (*asynq.Task, error) {
	payload, err := json.Marshal(SettlementPayload{
		SwapID:      swapID,
		TxHash:      txHash,
		UserAddress: userAddress,
		SubmittedAt: time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("fail to marshal settlement payload: %w", err)
	}
	return asynq.NewTask(TypeSettlementValidate, payload,
		asynq.Queue(QueueSettlement),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}

// DCAPayload asks the worker to drain the queued DCA executions for a user.
type DCAPayload struct {
	UserAddress string `json:"user_address"`
	FromToken   string `json:"from_token"`
	MaxCount    uint64 `json:"max_count"`
}

// NewDCAProcessTask builds a task that processes up to maxCount queued DCA
// entries for the user.
func NewDCAProcessTask(userAddress, fromToken string, maxCount uint64) (*asynq.Task, error) {
	payload, err := json.Marshal(DCAPayload{
		UserAddress: userAddress,
		FromToken:   fromToken,
		MaxCount:    maxCount,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to marshal dca payload: %w", err)
	}
	return asynq.NewTask(TypeDCAProcess, payload,
		asynq.Queue(QueueDCA),
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
	), nil
}
