package types

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the lifecycle of a recorded swap transaction.
type TransactionStatus string

const (
	StatusProposed TransactionStatus = "PROPOSED"
	StatusPending  TransactionStatus = "PENDING"
	StatusMined    TransactionStatus = "MINED"
	StatusRejected TransactionStatus = "REJECTED"
	StatusFailed   TransactionStatus = "FAILED"
)

// SwapRecord is one row of swap history. Metadata carries settlement flags
// and error classification once the background validator has run.
type SwapRecord struct {
	ID               uuid.UUID              `json:"id"`
	UserAddress      string                 `json:"user_address"`
	TxHash           string                 `json:"tx_hash"`
	FromToken        string                 `json:"from_token"`
	ToToken          string                 `json:"to_token"`
	InputAmount      string                 `json:"input_amount"`
	SavingsAmount    string                 `json:"savings_amount"`
	ActualSwapAmount string                 `json:"actual_swap_amount"`
	Status           TransactionStatus      `json:"status"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}
