package types

import "time"

type ActionType string

const (
	ActionDeposit  ActionType = "deposit"
	ActionWithdraw ActionType = "withdraw"
)

// ActionReceipt records the outcome of a user-initiated write.
type ActionReceipt struct {
	ID                int64      `json:"id"`
	ReceiptID         string     `json:"receipt_id"` // deposit saga id
	Timestamp         time.Time  `json:"timestamp"`
	ActionType        ActionType `json:"action_type"`
	Account           string     `json:"account"`
	Token             string     `json:"token,omitempty"`
	Amount            string     `json:"amount"`
	Stage             string     `json:"stage"`
	Success           bool       `json:"success"`
	Message           string     `json:"message,omitempty"`
	TransactionHashes []string   `json:"transaction_hashes"`
}

// ActivitySummary aggregates the stored history.
type ActivitySummary struct {
	Snapshots      int        `json:"snapshots"`
	Deposits       int        `json:"deposits"`
	FailedDeposits int        `json:"failed_deposits"`
	Withdrawals    int        `json:"withdrawals"`
	LastSnapshotAt *time.Time `json:"last_snapshot_at,omitempty"`
	LatestTVL      string     `json:"latest_tvl,omitempty"`
	LatestAPY      string     `json:"latest_apy,omitempty"`
}
