package models

import "time"

// Account is a custody balance row. Party accounts are keyed by the caller's
// address; escrow accounts are derived from the stream they belong to and are
// owned by the ledger itself.
type Account struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Address string `gorm:"uniqueIndex;not null" json:"address"`
	Asset   string `gorm:"not null" json:"asset"`
	Balance int64  `gorm:"not null;default:0" json:"balance"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransferKind labels why a custody movement happened.
type TransferKind string

const (
	TransferDeposit    TransferKind = "deposit"    // sender -> escrow on create
	TransferWithdrawal TransferKind = "withdrawal" // escrow -> recipient
	TransferRefund     TransferKind = "refund"     // escrow -> sender on cancel
	TransferReload     TransferKind = "reload"     // sender -> escrow on reload
	TransferFunding    TransferKind = "funding"    // external top-up of a party account
)

// Transfer is the audit record of one executed custody movement. It is
// written in the same transaction as the balance changes it describes.
type Transfer struct {
	ID          uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	StreamID    string       `gorm:"index" json:"stream_id"`
	Asset       string       `json:"asset"`
	FromAddress string       `gorm:"index" json:"from_address"`
	ToAddress   string       `gorm:"index" json:"to_address"`
	Amount      int64        `json:"amount"`
	Kind        TransferKind `gorm:"index" json:"kind"`

	// Destination balance after the movement, for reconciliation.
	BalanceAfter int64 `json:"balance_after"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
