package models

import "time"

// AssetNative is the asset identifier for native-currency streams.
// Token streams carry the token's own asset identifier instead.
const AssetNative = "native"

// MaxTitleLength is the longest allowed stream title.
const MaxTitleLength = 50

// Stream is the vesting ledger's sole entity: a deposit held in escrow that
// unlocks to the recipient in whole interval steps. All amounts are exact
// non-negative integers in the asset's smallest unit; all instants are unix
// seconds.
type Stream struct {
	ID    string `gorm:"primaryKey;size:36" json:"id"`
	Title string `gorm:"size:50" json:"title"`

	Sender    string `gorm:"index;not null" json:"sender"`
	Recipient string `gorm:"index;not null" json:"recipient"`
	Asset     string `gorm:"not null" json:"asset"`

	// Escrow account owned by the ledger, derived from (ID, Sender, EscrowBump).
	EscrowAddress string `gorm:"uniqueIndex" json:"escrow_address"`
	EscrowBump    uint8  `json:"-"`

	CreateTime int64 `gorm:"not null" json:"create_time"`
	StartTime  int64 `gorm:"not null" json:"start_time"`
	StopTime   int64 `gorm:"not null" json:"stop_time"`

	Deposit          int64 `gorm:"not null" json:"deposit"`
	RemainingBalance int64 `gorm:"not null" json:"remaining_balance"`
	Withdrawn        int64 `gorm:"not null;default:0" json:"withdrawn"`

	CliffAmount    int64 `gorm:"not null;default:0" json:"cliff_amount"`
	IsCliffPercent bool  `gorm:"not null;default:false" json:"is_cliff_percent"`

	Interval int64 `gorm:"not null" json:"interval"`
	Rate     int64 `gorm:"not null" json:"rate"`

	// TimeLeft is the schedule remainder captured at pause time; PausedAmount
	// is the withdrawn total at the most recent pause and permanently replaces
	// the cliff in the accrual floor once set.
	TimeLeft     int64 `gorm:"not null;default:0" json:"time_left"`
	PausedAmount int64 `gorm:"not null;default:0" json:"paused_amount"`

	CancelBy   Policy `gorm:"size:16;not null" json:"cancel_by"`
	PauseBy    Policy `gorm:"size:16;not null" json:"pause_by"`
	ResumeBy   Policy `gorm:"size:16;not null" json:"resume_by"`
	WithdrawBy Policy `gorm:"size:16;not null" json:"withdraw_by"`
	EditBy     Policy `gorm:"size:16;not null" json:"edit_by"`

	IsPaused    bool `gorm:"not null;default:false" json:"is_paused"`
	IsCancelled bool `gorm:"not null;default:false" json:"is_cancelled"`
	IsInfinite  bool `gorm:"not null;default:false" json:"is_infinite"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// CreateStreamParams carries everything needed to open a stream. Amount is
// the total escrow deposit including the cliff; CliffAmount must already be
// resolved to an absolute value (IsCliffPercent is recorded verbatim for
// clients that expressed the cliff as a percentage).
type CreateStreamParams struct {
	Sender    string
	Recipient string
	Asset     string
	Title     string

	Amount         int64
	CliffAmount    int64
	IsCliffPercent bool

	StartTime int64
	StartNow  bool
	Interval  int64
	Rate      int64
	Duration  int64

	IsInfinite bool

	CancelBy   Policy
	PauseBy    Policy
	ResumeBy   Policy
	WithdrawBy Policy
	EditBy     Policy
}
