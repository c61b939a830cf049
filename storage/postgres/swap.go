package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/savings-engine/internal/types"
)

const swapColumns = `
	id, user_address, tx_hash, from_token, to_token,
	input_amount, savings_amount, actual_swap_amount,
	status, metadata, created_at, updated_at
`

func (p *PostgresBackend) CreateSwapRecord(ctx context.Context, record types.SwapRecord) (uuid.UUID, error) {
	query := `
        INSERT INTO swap_history (
            user_address, tx_hash, from_token, to_token,
            input_amount, savings_amount, actual_swap_amount, status, metadata
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (tx_hash) DO UPDATE SET
            status = EXCLUDED.status,
            metadata = EXCLUDED.metadata,
            updated_at = NOW()
        RETURNING id
    `
	var id uuid.UUID
	err := p.pool.QueryRow(ctx, query,
		record.UserAddress,
		record.TxHash,
		record.FromToken,
		record.ToToken,
		record.InputAmount,
		record.SavingsAmount,
		record.ActualSwapAmount,
		record.Status,
		record.Metadata,
	).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create swap record: %w", err)
	}

	return id, nil
}

func (p *PostgresBackend) CreateSwapRecordTx(ctx context.Context, dbTx pgx.Tx, record types.SwapRecord) (uuid.UUID, error) {
	query := `
        INSERT INTO swap_history (
            user_address, tx_hash, from_token, to_token,
            input_amount, savings_amount, actual_swap_amount, status, metadata
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	var id uuid.UUID
	err := dbTx.QueryRow(ctx, query,
		record.UserAddress,
		record.TxHash,
		record.FromToken,
		record.ToToken,
		record.InputAmount,
		record.SavingsAmount,
		record.ActualSwapAmount,
		record.Status,
		record.Metadata,
	).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create swap record: %w", err)
	}

	return id, nil
}

func (p *PostgresBackend) UpdateSwapStatus(ctx context.Context, id uuid.UUID, status types.TransactionStatus, metadata map[string]interface{}) error {
	query := `
        UPDATE swap_history
        SET status = $1, metadata = metadata || $2::jsonb, updated_at = NOW()
        WHERE id = $3
    `
	_, err := p.pool.Exec(ctx, query, status, metadata, id)
	return err
}

func (p *PostgresBackend) UpdateSwapStatusByHash(ctx context.Context, txHash string, status types.TransactionStatus, metadata map[string]interface{}) error {
	query := `
        UPDATE swap_history
        SET status = $1, metadata = metadata || $2::jsonb, updated_at = NOW()
        WHERE tx_hash = $3
    `
	result, err := p.pool.Exec(ctx, query, status, metadata, txHash)
	if err != nil {
		return fmt.Errorf("failed to update swap status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no swap record found for hash %s", txHash)
	}
	return nil
}

func (p *PostgresBackend) GetSwapByHash(ctx context.Context, txHash string) (*types.SwapRecord, error) {
	query := `SELECT ` + swapColumns + ` FROM swap_history WHERE tx_hash = $1`

	var record types.SwapRecord
	err := p.pool.QueryRow(ctx, query, txHash).Scan(
		&record.ID,
		&record.UserAddress,
		&record.TxHash,
		&record.FromToken,
		&record.ToToken,
		&record.InputAmount,
		&record.SavingsAmount,
		&record.ActualSwapAmount,
		&record.Status,
		&record.Metadata,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get swap record: %w", err)
	}

	return &record, nil
}

func (p *PostgresBackend) GetSwapHistory(ctx context.Context, userAddress string, take int, skip int) ([]types.SwapRecord, error) {
	query := `
        SELECT ` + swapColumns + `
        FROM swap_history
        WHERE LOWER(user_address) = LOWER($1)
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := p.pool.Query(ctx, query, userAddress, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap history: %w", err)
	}
	defer rows.Close()

	var records []types.SwapRecord
	for rows.Next() {
		var record types.SwapRecord
		if err := rows.Scan(
			&record.ID,
			&record.UserAddress,
			&record.TxHash,
			&record.FromToken,
			&record.ToToken,
			&record.InputAmount,
			&record.SavingsAmount,
			&record.ActualSwapAmount,
			&record.Status,
			&record.Metadata,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan swap record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (p *PostgresBackend) CountSwaps(ctx context.Context, userAddress string, status types.TransactionStatus) (int64, error) {
	query := `
        SELECT COUNT(*) FROM swap_history
        WHERE LOWER(user_address) = LOWER($1) AND status = $2
    `
	var count int64
	if err := p.pool.QueryRow(ctx, query, userAddress, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count swaps: %w", err)
	}
	return count, nil
}
