// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/coinchange/cdsusd-vault/internal/metrics"
	"github.com/coinchange/cdsusd-vault/internal/types"
)

// SaveVaultSnapshot saves one refresh result to the database.
func SaveVaultSnapshot(ctx context.Context, snapshot types.VaultSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO vault_snapshots (
			snapshot_timestamp, account, chain_id,
			tvl, apy, price_per_share, total_supply
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING snapshot_id;
	`

	start := time.Now()
	var snapshotID int64
	err := DB.QueryRowContext(ctx,
		query,
		snapshot.Timestamp, snapshot.Account, int64(snapshot.ChainID),
		snapshot.TVL, snapshot.APY, snapshot.PricePerShare, snapshot.TotalSupply,
	).Scan(&snapshotID)
	metrics.RecordDBQuery("save_snapshot", time.Since(start).Seconds(), err)

	if err != nil {
		return 0, fmt.Errorf("failed to save vault snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Str("account", snapshot.Account).
		Str("tvl", snapshot.TVL).
		Msg("Vault snapshot saved to database")

	return snapshotID, nil
}

// SaveActionReceipt saves the outcome of a deposit or withdrawal.
func SaveActionReceipt(ctx context.Context, receipt types.ActionReceipt) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	if receipt.Timestamp.IsZero() {
		receipt.Timestamp = time.Now().UTC()
	}

	var token interface{}
	if receipt.Token != "" {
		token = receipt.Token
	}

	query := `
		INSERT INTO action_receipts (
			receipt_uuid, action_timestamp, action_type, account, token,
			amount, stage, success, message, transaction_hashes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING receipt_id;
	`

	start := time.Now()
	var receiptID int64
	err := DB.QueryRowContext(ctx,
		query,
		receipt.ReceiptID, receipt.Timestamp, string(receipt.ActionType), receipt.Account, token,
		receipt.Amount, receipt.Stage, receipt.Success, receipt.Message,
		pq.Array(receipt.TransactionHashes),
	).Scan(&receiptID)
	metrics.RecordDBQuery("save_receipt", time.Since(start).Seconds(), err)

	if err != nil {
		return 0, fmt.Errorf("failed to save action receipt: %w", err)
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Str("action_type", string(receipt.ActionType)).
		Str("stage", receipt.Stage).
		Bool("success", receipt.Success).
		Msg("Action receipt saved to database")

	return receiptID, nil
}
