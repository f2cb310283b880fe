package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sentinel errors surfaced by custody movements. The ledger propagates them
// verbatim; any of them aborts the enclosing operation.
var (
	ErrAccountNotFound   = errors.New("custody: account not found")
	ErrAssetMismatch     = errors.New("custody: account asset does not match")
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrEscrowExhausted   = errors.New("custody: no free escrow address for stream")
	ErrInvalidAmount     = errors.New("custody: amount must be positive")
)

// Service owns the custody account table: party balances and ledger-owned
// escrow balances. Movements run inside the caller's transaction so that
// stream bookkeeping and value movement commit or roll back as one unit.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AutoMigrate runs database migrations for custody tables
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Account{}, &models.Transfer{})
}

// TransferParams describes one value movement between custody accounts.
type TransferParams struct {
	StreamID string
	Asset    string
	From     string
	To       string
	Amount   int64
	Kind     models.TransferKind
}

// GetAccount retrieves an account by address.
func (s *Service) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	var account models.Account

	err := s.db.WithContext(ctx).
		Where("address = ?", address).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// Fund tops up a party account from outside the ledger, creating the account
// on first use. Escrow addresses cannot be funded directly.
func (s *Service) Fund(ctx context.Context, address, asset string, amount int64) (*models.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if IsEscrowAddress(address) {
		return nil, fmt.Errorf("custody: cannot fund escrow address %s directly", address)
	}

	var account models.Account

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := s.lockOrCreateAccount(tx, address, asset)
		if err != nil {
			return err
		}
		if acc.Asset != asset {
			return ErrAssetMismatch
		}

		newBalance := acc.Balance + amount
		if err := tx.Model(acc).Update("balance", newBalance).Error; err != nil {
			return fmt.Errorf("failed to update account balance: %w", err)
		}
		acc.Balance = newBalance

		transfer := models.Transfer{
			Asset:        asset,
			ToAddress:    address,
			Amount:       amount,
			Kind:         models.TransferFunding,
			BalanceAfter: newBalance,
		}
		if err := tx.Create(&transfer).Error; err != nil {
			return fmt.Errorf("failed to record funding transfer: %w", err)
		}

		account = *acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &account, nil
}

// OpenEscrow creates the escrow account for a stream, probing bump values
// until the derived address is free. The (address, bump) pair is recorded on
// the stream so every later operation can re-derive and verify it.
func (s *Service) OpenEscrow(tx *gorm.DB, streamID, sender, asset string) (string, uint8, error) {
	for bump := 0; bump <= 255; bump++ {
		address := EscrowAddress(streamID, sender, uint8(bump))

		var count int64
		if err := tx.Model(&models.Account{}).
			Where("address = ?", address).
			Count(&count).Error; err != nil {
			return "", 0, fmt.Errorf("failed to probe escrow address: %w", err)
		}
		if count > 0 {
			continue
		}

		account := models.Account{Address: address, Asset: asset, Balance: 0}
		if err := tx.Create(&account).Error; err != nil {
			return "", 0, fmt.Errorf("failed to create escrow account: %w", err)
		}
		return address, uint8(bump), nil
	}

	return "", 0, ErrEscrowExhausted
}

// Transfer moves value between two custody accounts inside the caller's
// transaction. The source account must exist, match the asset and hold the
// amount; the destination is created on first use. The movement and its
// audit row commit together with whatever else the transaction carries.
func (s *Service) Transfer(tx *gorm.DB, params TransferParams) (*models.Transfer, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var from models.Account
	err := lockForUpdate(tx).
		Where("address = ?", params.From).
		First(&from).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock source account: %w", err)
	}

	if from.Asset != params.Asset {
		return nil, ErrAssetMismatch
	}
	if from.Balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	to, err := s.lockOrCreateAccount(tx, params.To, params.Asset)
	if err != nil {
		return nil, err
	}
	if to.Asset != params.Asset {
		return nil, ErrAssetMismatch
	}

	if err := tx.Model(&from).Update("balance", from.Balance-params.Amount).Error; err != nil {
		return nil, fmt.Errorf("failed to debit source account: %w", err)
	}

	newBalance := to.Balance + params.Amount
	if err := tx.Model(to).Update("balance", newBalance).Error; err != nil {
		return nil, fmt.Errorf("failed to credit destination account: %w", err)
	}

	transfer := models.Transfer{
		StreamID:     params.StreamID,
		Asset:        params.Asset,
		FromAddress:  params.From,
		ToAddress:    params.To,
		Amount:       params.Amount,
		Kind:         params.Kind,
		BalanceAfter: newBalance,
	}
	if err := tx.Create(&transfer).Error; err != nil {
		return nil, fmt.Errorf("failed to record transfer: %w", err)
	}

	return &transfer, nil
}

// Transfers returns the audit history for a stream, newest first.
func (s *Service) Transfers(ctx context.Context, streamID string, limit, offset int) ([]models.Transfer, error) {
	var transfers []models.Transfer

	query := s.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&transfers).Error; err != nil {
		return nil, fmt.Errorf("failed to get transfer history: %w", err)
	}

	return transfers, nil
}

// lockOrCreateAccount fetches an account under a row lock, creating it with a
// zero balance when absent.
func (s *Service) lockOrCreateAccount(tx *gorm.DB, address, asset string) (*models.Account, error) {
	var account models.Account

	err := lockForUpdate(tx).
		Where("address = ?", address).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.Account{Address: address, Asset: asset, Balance: 0}
		if err := tx.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	return &account, nil
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite serializes writers on its own, so the clause is omitted there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
