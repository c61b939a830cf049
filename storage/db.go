package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spendsave/savings-engine/internal/types"
)

type PoolProvider interface {
	Pool() *pgxpool.Pool
}

type Transactor interface {
	PoolProvider
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type DatabaseStorage interface {
	Transactor
	SwapRepository
	Close() error
}

type SwapRepository interface {
	CreateSwapRecord(ctx context.Context, record types.SwapRecord) (uuid.UUID, error)
	CreateSwapRecordTx(ctx context.Context, dbTx pgx.Tx, record types.SwapRecord) (uuid.UUID, error)
	UpdateSwapStatus(ctx context.Context, id uuid.UUID, status types.TransactionStatus, metadata map[string]interface{}) error
	UpdateSwapStatusByHash(ctx context.Context, txHash string, status types.TransactionStatus, metadata map[string]interface{}) error
	GetSwapByHash(ctx context.Context, txHash string) (*types.SwapRecord, error)
	GetSwapHistory(ctx context.Context, userAddress string, take int, skip int) ([]types.SwapRecord, error)
	CountSwaps(ctx context.Context, userAddress string, status types.TransactionStatus) (int64, error)
}
