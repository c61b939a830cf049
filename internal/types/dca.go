package types

import (
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
)

// DCAQueueItem mirrors one queued conversion on the DCA contract. The
// executed flag is only ever set by the on-chain executor; the engine reads
// the queue and triggers execution.
type DCAQueueItem struct {
	FromToken         gcommon.Address `json:"from_token"`
	ToToken           gcommon.Address `json:"to_token"`
	Amount            *big.Int        `json:"amount"`
	ExecutionTick     int32           `json:"execution_tick"`
	Deadline          uint64          `json:"deadline"` // unix seconds
	Executed          bool            `json:"executed"`
	CustomSlippageBps uint64          `json:"custom_slippage_bps"`
}

// DailySavingsStatus reports whether a user has pending daily savings to
// process and how much.
type DailySavingsStatus struct {
	Token          gcommon.Address `json:"token"`
	PendingAmount  *big.Int        `json:"pending_amount"`
	LastExecution  uint64          `json:"last_execution"` // unix seconds
	NextExecution  uint64          `json:"next_execution"` // unix seconds
	CanExecuteNow  bool            `json:"can_execute_now"`
}
