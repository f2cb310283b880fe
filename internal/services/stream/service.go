package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/services/custody"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the payment-streaming ledger. Every mutating operation loads
// the stream under a row lock, validates identity and state, consults the
// relevant authorization policy, runs the vesting calculation and applies
// bookkeeping plus custody transfers inside one database transaction, so a
// failure at any step leaves the record and all balances unchanged.
type Service struct {
	db      *gorm.DB
	custody *custody.Service
	clock   Clock
}

func NewService(db *gorm.DB, custodySvc *custody.Service, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{db: db, custody: custodySvc, clock: clock}
}

// AutoMigrate runs database migrations for the stream table
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Stream{})
}

// Create validates the schedule, opens the escrow account and moves the full
// deposit from the sender into escrow. Either everything commits or nothing
// does.
func (s *Service) Create(ctx context.Context, params models.CreateStreamParams) (*models.Stream, error) {
	now := s.clock.Now()

	startTime := params.StartTime
	if params.StartNow {
		startTime = now
	}

	if len(params.Title) > models.MaxTitleLength {
		return nil, models.NewValidationError(fmt.Sprintf("title cannot be longer than %d characters", models.MaxTitleLength))
	}
	if params.Sender == "" || params.Recipient == "" {
		return nil, models.NewValidationError("sender and recipient are required")
	}
	if params.Sender == params.Recipient {
		return nil, models.NewIdentityMismatchError("recipient cannot be the same as sender")
	}
	if params.Amount <= 0 {
		return nil, models.NewValidationError("deposit amount must be greater than zero")
	}
	if startTime < now {
		return nil, models.NewValidationError("start time must not be in the past")
	}
	if params.Interval <= 0 {
		return nil, models.NewValidationError("interval must be greater than zero")
	}
	if params.Rate <= 0 {
		return nil, models.NewValidationError("rate must be greater than zero")
	}
	if params.CliffAmount < 0 || params.CliffAmount >= params.Amount {
		return nil, models.NewValidationError("cliff amount must be smaller than the deposit amount")
	}

	// The linear schedule applies to the deposit net of the cliff.
	net := params.Amount - params.CliffAmount
	if net < params.Rate {
		return nil, models.NewValidationError("deposit net of cliff must cover at least one rate step")
	}

	if !params.CancelBy.Valid() {
		return nil, models.NewValidationError("invalid cancel_by policy")
	}
	if !params.PauseBy.Valid() {
		return nil, models.NewValidationError("invalid pause_by policy")
	}
	if !params.ResumeBy.Valid() {
		return nil, models.NewValidationError("invalid resume_by policy")
	}
	if !params.WithdrawBy.ValidNonNeither() {
		return nil, models.NewValidationError("invalid withdraw_by policy")
	}
	if !params.EditBy.ValidNonNeither() {
		return nil, models.NewValidationError("invalid edit_by policy")
	}

	// The declared duration must agree with amount, rate and interval.
	// Exact integer arithmetic: round(net/rate*interval) without floats.
	if params.Duration != roundDiv(net*params.Interval, params.Rate) {
		return nil, models.NewValidationError("duration does not match amount, rate and interval")
	}

	// A remainder extends the schedule by one interval so the final partial
	// step is still fully unlockable.
	intervals := net / params.Rate
	duration := params.Duration
	if net%params.Rate > 0 {
		duration = params.Interval * (intervals + 1)
	}

	asset := params.Asset
	if asset == "" {
		asset = models.AssetNative
	}

	st := &models.Stream{
		ID:               uuid.New().String(),
		Title:            params.Title,
		Sender:           params.Sender,
		Recipient:        params.Recipient,
		Asset:            asset,
		CreateTime:       now,
		StartTime:        startTime,
		StopTime:         startTime + duration,
		Deposit:          params.Amount,
		RemainingBalance: params.Amount,
		Withdrawn:        0,
		CliffAmount:      params.CliffAmount,
		IsCliffPercent:   params.IsCliffPercent,
		Interval:         params.Interval,
		Rate:             params.Rate,
		PausedAmount:     0,
		CancelBy:         params.CancelBy,
		PauseBy:          params.PauseBy,
		ResumeBy:         params.ResumeBy,
		WithdrawBy:       params.WithdrawBy,
		EditBy:           params.EditBy,
		IsInfinite:       params.IsInfinite,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		escrowAddress, bump, err := s.custody.OpenEscrow(tx, st.ID, st.Sender, asset)
		if err != nil {
			return models.NewTransferFailureError(err)
		}
		st.EscrowAddress = escrowAddress
		st.EscrowBump = bump

		if err := tx.Create(st).Error; err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}

		if _, err := s.custody.Transfer(tx, custody.TransferParams{
			StreamID: st.ID,
			Asset:    asset,
			From:     st.Sender,
			To:       escrowAddress,
			Amount:   st.Deposit,
			Kind:     models.TransferDeposit,
		}); err != nil {
			return models.NewTransferFailureError(err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return st, nil
}

// Withdraw releases the matured share of the escrow to the recipient.
func (s *Service) Withdraw(ctx context.Context, streamID, caller string) (*models.Stream, int64, error) {
	var st *models.Stream
	var released int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = s.lockStream(tx, streamID)
		if err != nil {
			return err
		}

		if !st.WithdrawBy.Allows(caller, st.Sender, st.Recipient) {
			return models.NewNotAuthorizedError("withdraw from")
		}
		if st.IsCancelled {
			return models.NewInvalidStateError("stream is already cancelled")
		}
		if st.IsPaused {
			return models.NewInvalidStateError("stream is paused; resume it to withdraw")
		}
		if err := verifyEscrow(st); err != nil {
			return err
		}

		now := s.clock.Now()
		if now < st.StartTime {
			return models.NewInvalidStateError("stream has not started yet")
		}

		amount, err := accrual(st, now, true)
		if err != nil {
			return err
		}
		if amount <= 0 {
			return models.NewNothingToWithdrawError()
		}

		if _, err := s.custody.Transfer(tx, custody.TransferParams{
			StreamID: st.ID,
			Asset:    st.Asset,
			From:     st.EscrowAddress,
			To:       st.Recipient,
			Amount:   amount,
			Kind:     models.TransferWithdrawal,
		}); err != nil {
			return models.NewTransferFailureError(err)
		}

		st.RemainingBalance -= amount
		st.Withdrawn += amount
		released = amount

		return tx.Model(st).Updates(map[string]any{
			"remaining_balance": st.RemainingBalance,
			"withdrawn":         st.Withdrawn,
		}).Error
	})
	if err != nil {
		return nil, 0, err
	}

	return st, released, nil
}

// Pause releases whatever has matured so far, then freezes the schedule.
// The withdrawn total at this moment is snapshotted into PausedAmount, which
// permanently replaces the cliff in the accrual floor so the cliff is never
// granted twice.
func (s *Service) Pause(ctx context.Context, streamID, caller string) (*models.Stream, int64, error) {
	var st *models.Stream
	var released int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = s.lockStream(tx, streamID)
		if err != nil {
			return err
		}

		if !st.PauseBy.Allows(caller, st.Sender, st.Recipient) {
			return models.NewNotAuthorizedError("pause")
		}
		if st.IsPaused {
			return models.NewInvalidStateError("stream is already paused")
		}
		if st.IsCancelled {
			return models.NewInvalidStateError("stream is already cancelled")
		}
		if err := verifyEscrow(st); err != nil {
			return err
		}

		now := s.clock.Now()
		if now >= st.StopTime {
			return models.NewInvalidStateError("stream has already ended")
		}
		if now < st.StartTime {
			return models.NewInvalidStateError("stream has not started yet")
		}

		// Pausing does not require a full interval to have elapsed; a zero
		// payout is fine.
		amount, err := accrual(st, now, false)
		if err != nil {
			return err
		}

		if amount > 0 {
			if _, err := s.custody.Transfer(tx, custody.TransferParams{
				StreamID: st.ID,
				Asset:    st.Asset,
				From:     st.EscrowAddress,
				To:       st.Recipient,
				Amount:   amount,
				Kind:     models.TransferWithdrawal,
			}); err != nil {
				return models.NewTransferFailureError(err)
			}
		}

		st.IsPaused = true
		st.TimeLeft = st.StopTime - now
		st.RemainingBalance -= amount
		st.Withdrawn += amount
		st.PausedAmount = st.Withdrawn
		released = amount

		return tx.Model(st).Updates(map[string]any{
			"is_paused":         true,
			"time_left":         st.TimeLeft,
			"remaining_balance": st.RemainingBalance,
			"withdrawn":         st.Withdrawn,
			"paused_amount":     st.PausedAmount,
		}).Error
	})
	if err != nil {
		return nil, 0, err
	}

	return st, released, nil
}

// Resume restarts the elapsed-time clock while preserving the remaining
// schedule duration captured at pause time.
func (s *Service) Resume(ctx context.Context, streamID, caller string) (*models.Stream, error) {
	var st *models.Stream

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = s.lockStream(tx, streamID)
		if err != nil {
			return err
		}

		if !st.ResumeBy.Allows(caller, st.Sender, st.Recipient) {
			return models.NewNotAuthorizedError("resume")
		}
		if st.IsCancelled {
			return models.NewInvalidStateError("stream is already cancelled")
		}
		if !st.IsPaused {
			return models.NewInvalidStateError("stream is not paused")
		}

		now := s.clock.Now()
		if now < st.StartTime {
			return models.NewInvalidStateError("stream has not started yet")
		}

		st.StartTime = now
		st.StopTime = now + st.TimeLeft
		st.IsPaused = false

		return tx.Model(st).Updates(map[string]any{
			"start_time": st.StartTime,
			"stop_time":  st.StopTime,
			"is_paused":  false,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return st, nil
}

// Cancel terminates the stream. Before the start instant or while paused the
// whole remaining balance returns to the sender; otherwise the matured share
// goes to the recipient and the rest to the sender, in the same operation.
func (s *Service) Cancel(ctx context.Context, streamID, caller string) (*models.Stream, int64, int64, error) {
	var st *models.Stream
	var recipientShare, senderShare int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = s.lockStream(tx, streamID)
		if err != nil {
			return err
		}

		if st.CancelBy == models.PolicyNeither {
			return models.NewNotAuthorizedError("cancel")
		}
		if !st.CancelBy.Allows(caller, st.Sender, st.Recipient) {
			return models.NewNotAuthorizedError("cancel")
		}
		if st.IsCancelled {
			return models.NewInvalidStateError("stream is already cancelled")
		}
		if err := verifyEscrow(st); err != nil {
			return err
		}

		now := s.clock.Now()

		if now < st.StartTime || st.IsPaused {
			senderShare = st.RemainingBalance
			if senderShare > 0 {
				if _, err := s.custody.Transfer(tx, custody.TransferParams{
					StreamID: st.ID,
					Asset:    st.Asset,
					From:     st.EscrowAddress,
					To:       st.Sender,
					Amount:   senderShare,
					Kind:     models.TransferRefund,
				}); err != nil {
					return models.NewTransferFailureError(err)
				}
			}
			st.RemainingBalance = 0
			st.IsPaused = false
		} else {
			amount, err := accrual(st, now, false)
			if err != nil {
				return err
			}

			recipientShare = amount
			senderShare = st.RemainingBalance - recipientShare

			if recipientShare > 0 {
				if _, err := s.custody.Transfer(tx, custody.TransferParams{
					StreamID: st.ID,
					Asset:    st.Asset,
					From:     st.EscrowAddress,
					To:       st.Recipient,
					Amount:   recipientShare,
					Kind:     models.TransferWithdrawal,
				}); err != nil {
					return models.NewTransferFailureError(err)
				}
			}
			if senderShare > 0 {
				if _, err := s.custody.Transfer(tx, custody.TransferParams{
					StreamID: st.ID,
					Asset:    st.Asset,
					From:     st.EscrowAddress,
					To:       st.Sender,
					Amount:   senderShare,
					Kind:     models.TransferRefund,
				}); err != nil {
					return models.NewTransferFailureError(err)
				}
			}

			st.Withdrawn += recipientShare
			st.RemainingBalance = 0
		}

		st.IsCancelled = true

		return tx.Model(st).Updates(map[string]any{
			"remaining_balance": st.RemainingBalance,
			"withdrawn":         st.Withdrawn,
			"is_paused":         st.IsPaused,
			"is_cancelled":      true,
		}).Error
	})
	if err != nil {
		return nil, 0, 0, err
	}

	return st, recipientShare, senderShare, nil
}

// Reload tops up an infinite stream with another deposit and extends the
// schedule accordingly. While paused the extension is deferred into TimeLeft
// and takes effect on resume.
func (s *Service) Reload(ctx context.Context, streamID, caller string, amount int64) (*models.Stream, error) {
	var st *models.Stream

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = s.lockStream(tx, streamID)
		if err != nil {
			return err
		}

		if !st.IsInfinite {
			return models.NewInvalidStateError("this is not an infinite stream")
		}
		if !st.EditBy.Allows(caller, st.Sender, st.Recipient) {
			return models.NewNotAuthorizedError("reload")
		}
		// The top-up is funded from the sender's account.
		if caller != st.Sender {
			return models.NewIdentityMismatchError("only the stream sender can fund a reload")
		}
		if st.IsCancelled {
			return models.NewInvalidStateError("stream is already cancelled")
		}
		if amount <= 0 {
			return models.NewValidationError("reload amount must be greater than zero")
		}
		// Without this the added duration would be zero.
		if amount < st.Rate {
			return models.NewValidationError("reload amount must cover at least one rate step")
		}
		if err := verifyEscrow(st); err != nil {
			return err
		}

		extra := roundDiv(amount*st.Interval, st.Rate)
		if st.IsPaused {
			st.TimeLeft += extra
		} else {
			st.StopTime += extra
		}
		st.RemainingBalance += amount
		st.Deposit += amount

		if _, err := s.custody.Transfer(tx, custody.TransferParams{
			StreamID: st.ID,
			Asset:    st.Asset,
			From:     st.Sender,
			To:       st.EscrowAddress,
			Amount:   amount,
			Kind:     models.TransferReload,
		}); err != nil {
			return models.NewTransferFailureError(err)
		}

		return tx.Model(st).Updates(map[string]any{
			"time_left":         st.TimeLeft,
			"stop_time":         st.StopTime,
			"remaining_balance": st.RemainingBalance,
			"deposit":           st.Deposit,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return st, nil
}

// Close deletes a fully drained stream and reclaims its escrow account.
// Only the original sender may close, regardless of cancellation status.
func (s *Service) Close(ctx context.Context, streamID, caller string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.lockStream(tx, streamID)
		if err != nil {
			return err
		}

		if st.RemainingBalance != 0 {
			return models.NewInvalidStateError("stream balance is not empty; withdraw or cancel first")
		}
		if caller != st.Sender {
			return models.NewNotAuthorizedError("close")
		}

		if err := tx.Where("address = ?", st.EscrowAddress).Delete(&models.Account{}).Error; err != nil {
			return fmt.Errorf("failed to reclaim escrow account: %w", err)
		}

		return tx.Delete(st).Error
	})
}

// Get fetches a stream by id.
func (s *Service) Get(ctx context.Context, streamID string) (*models.Stream, error) {
	var st models.Stream

	err := s.db.WithContext(ctx).
		Where("id = ?", streamID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("stream")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	return &st, nil
}

// Transfers returns the custody audit history for a stream.
func (s *Service) Transfers(ctx context.Context, streamID string, limit, offset int) ([]models.Transfer, error) {
	if _, err := s.Get(ctx, streamID); err != nil {
		return nil, err
	}
	return s.custody.Transfers(ctx, streamID, limit, offset)
}

// Withdrawable reports what a withdraw would release at the given instant,
// without touching the ledger. Used for read-only projections.
func Withdrawable(st *models.Stream, now int64) int64 {
	if st.IsCancelled || st.IsPaused || now < st.StartTime {
		return 0
	}
	amount, err := accrual(st, now, true)
	if err != nil || amount < 0 {
		return 0
	}
	return amount
}

// accrual computes the amount currently releasable to the recipient: whole
// elapsed intervals times the rate, plus a floor that is the cliff until the
// first pause and the pause-time withdrawn snapshot afterwards, minus what
// has already been released. At or past the stop instant the entire
// remaining balance has matured.
func accrual(st *models.Stream, now int64, requireWholeInterval bool) (int64, error) {
	if now >= st.StopTime {
		return st.RemainingBalance, nil
	}

	delta := now - st.StartTime

	if requireWholeInterval && st.CliffAmount == 0 && delta < st.Interval {
		return 0, models.NewNothingToWithdrawError()
	}

	amount := (delta / st.Interval) * st.Rate

	if st.PausedAmount > 0 {
		amount += st.PausedAmount
	} else {
		amount += st.CliffAmount
	}

	if st.Withdrawn > 0 {
		amount -= st.Withdrawn
	}

	return amount, nil
}

// verifyEscrow re-derives the escrow address from the record and compares it
// to the stored one before authorizing any movement out of escrow.
func verifyEscrow(st *models.Stream) error {
	if custody.EscrowAddress(st.ID, st.Sender, st.EscrowBump) != st.EscrowAddress {
		return models.NewIdentityMismatchError("escrow address does not match stream record")
	}
	return nil
}

// lockStream loads a stream under a row lock for the enclosing transaction.
func (s *Service) lockStream(tx *gorm.DB, streamID string) (*models.Stream, error) {
	var st models.Stream

	query := tx
	if tx.Dialector.Name() != "sqlite" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	err := query.Where("id = ?", streamID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("stream")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock stream: %w", err)
	}

	return &st, nil
}

// roundDiv returns round(num/den) in pure integer arithmetic, half up.
func roundDiv(num, den int64) int64 {
	return (2*num + den) / (2 * den)
}
