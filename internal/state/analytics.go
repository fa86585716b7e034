package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/coinchange/cdsusd-vault/internal/metrics"
	"github.com/coinchange/cdsusd-vault/internal/types"
)

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// GetRecentSnapshots retrieves the newest vault snapshots, newest first.
func GetRecentSnapshots(ctx context.Context, limit int) ([]types.VaultSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT
			snapshot_id, snapshot_timestamp, account, chain_id,
			tvl::TEXT, apy::TEXT, price_per_share::TEXT, total_supply::TEXT
		FROM vault_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1
	`

	start := time.Now()
	rows, err := DB.QueryContext(ctx, query, clampLimit(limit))
	metrics.RecordDBQuery("recent_snapshots", time.Since(start).Seconds(), err)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent snapshots")
		return nil, fmt.Errorf("failed to query recent snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]types.VaultSnapshot, 0, clampLimit(limit))
	for rows.Next() {
		var s types.VaultSnapshot
		var chainID int64
		if err := rows.Scan(
			&s.ID, &s.Timestamp, &s.Account, &chainID,
			&s.TVL, &s.APY, &s.PricePerShare, &s.TotalSupply,
		); err != nil {
			log.Error().Err(err).Msg("Failed to scan snapshot row")
			continue // Skip this row and continue with others
		}
		s.ChainID = uint64(chainID)
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// GetRecentActionReceipts retrieves the newest deposit and withdrawal receipts.
func GetRecentActionReceipts(ctx context.Context, limit int) ([]types.ActionReceipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT
			receipt_id, receipt_uuid::TEXT, action_timestamp, action_type, account,
			COALESCE(token, ''), amount::TEXT, stage, success, COALESCE(message, ''),
			transaction_hashes
		FROM action_receipts
		ORDER BY action_timestamp DESC
		LIMIT $1
	`

	start := time.Now()
	rows, err := DB.QueryContext(ctx, query, clampLimit(limit))
	metrics.RecordDBQuery("recent_receipts", time.Since(start).Seconds(), err)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent receipts")
		return nil, fmt.Errorf("failed to query recent receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]types.ActionReceipt, 0, clampLimit(limit))
	for rows.Next() {
		var r types.ActionReceipt
		var actionType string
		if err := rows.Scan(
			&r.ID, &r.ReceiptID, &r.Timestamp, &actionType, &r.Account,
			&r.Token, &r.Amount, &r.Stage, &r.Success, &r.Message,
			pq.Array(&r.TransactionHashes), // Use pq.Array for PostgreSQL array
		); err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue
		}
		r.ActionType = types.ActionType(actionType)
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}

	return receipts, nil
}

// GetActivitySummary aggregates the stored snapshots and receipts.
func GetActivitySummary(ctx context.Context) (*types.ActivitySummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	summary := &types.ActivitySummary{}

	countsQuery := `
		SELECT
			(SELECT COUNT(*) FROM vault_snapshots),
			COUNT(*) FILTER (WHERE action_type = 'deposit' AND success),
			COUNT(*) FILTER (WHERE action_type = 'deposit' AND NOT success),
			COUNT(*) FILTER (WHERE action_type = 'withdraw')
		FROM action_receipts
	`
	start := time.Now()
	err := DB.QueryRowContext(ctx, countsQuery).Scan(
		&summary.Snapshots, &summary.Deposits, &summary.FailedDeposits, &summary.Withdrawals,
	)
	metrics.RecordDBQuery("activity_counts", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity counts: %w", err)
	}

	latestQuery := `
		SELECT snapshot_timestamp, tvl::TEXT, apy::TEXT
		FROM vault_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1
	`
	var lastAt time.Time
	start = time.Now()
	err = DB.QueryRowContext(ctx, latestQuery).Scan(&lastAt, &summary.LatestTVL, &summary.LatestAPY)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err == nil:
		summary.LastSnapshotAt = &lastAt
	}
	metrics.RecordDBQuery("latest_snapshot", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return summary, nil
}
