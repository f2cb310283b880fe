package custody

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/streamvault/streamvault/internal/models"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc := NewService(db)
	require.NoError(t, svc.AutoMigrate())

	return svc, db
}

func TestFundCreatesAndTopsUp(t *testing.T) {
	svc, _ := setupService(t)

	account, err := svc.Fund(context.Background(), "alice", models.AssetNative, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), account.Balance)

	account, err = svc.Fund(context.Background(), "alice", models.AssetNative, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(750), account.Balance)
}

func TestFundRejectsAssetMismatch(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Fund(context.Background(), "alice", models.AssetNative, 500)
	require.NoError(t, err)

	_, err = svc.Fund(context.Background(), "alice", "token-x", 250)
	assert.ErrorIs(t, err, ErrAssetMismatch)

	// The rejected deposit leaves the balance untouched.
	account, err := svc.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.AssetNative, account.Asset)
	assert.Equal(t, int64(500), account.Balance)
}

func TestFundRejectsInvalidAmounts(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Fund(context.Background(), "alice", models.AssetNative, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Fund(context.Background(), "alice", models.AssetNative, -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFundRejectsEscrowAddresses(t *testing.T) {
	svc, _ := setupService(t)

	escrow := EscrowAddress("stream-1", "alice", 0)
	_, err := svc.Fund(context.Background(), escrow, models.AssetNative, 100)
	require.Error(t, err)
}

func TestGetAccountNotFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestOpenEscrowProbesBumps(t *testing.T) {
	svc, db := setupService(t)

	var addr0, addr1 string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		addr0, _, err = svc.OpenEscrow(tx, "stream-1", "alice", models.AssetNative)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, EscrowAddress("stream-1", "alice", 0), addr0)

	// Same stream identity again: bump 0 is taken, bump 1 is chosen.
	var bump uint8
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		addr1, bump, err = svc.OpenEscrow(tx, "stream-1", "alice", models.AssetNative)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), bump)
	assert.Equal(t, EscrowAddress("stream-1", "alice", 1), addr1)
	assert.NotEqual(t, addr0, addr1)
}

func TestTransferMovesValueAndAudits(t *testing.T) {
	svc, db := setupService(t)

	_, err := svc.Fund(context.Background(), "alice", models.AssetNative, 1000)
	require.NoError(t, err)

	var transfer *models.Transfer
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		transfer, err = svc.Transfer(tx, TransferParams{
			StreamID: "stream-1",
			Asset:    models.AssetNative,
			From:     "alice",
			To:       "bob",
			Amount:   400,
			Kind:     models.TransferWithdrawal,
		})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, int64(400), transfer.Amount)
	assert.Equal(t, int64(400), transfer.BalanceAfter)

	from, err := svc.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(600), from.Balance)

	to, err := svc.GetAccount(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(400), to.Balance)
}

func TestTransferRejections(t *testing.T) {
	svc, db := setupService(t)

	_, err := svc.Fund(context.Background(), "alice", models.AssetNative, 100)
	require.NoError(t, err)

	tests := []struct {
		name    string
		params  TransferParams
		wantErr error
	}{
		{
			name:    "zero amount",
			params:  TransferParams{Asset: models.AssetNative, From: "alice", To: "bob", Amount: 0},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown source",
			params:  TransferParams{Asset: models.AssetNative, From: "ghost", To: "bob", Amount: 10},
			wantErr: ErrAccountNotFound,
		},
		{
			name:    "asset mismatch",
			params:  TransferParams{Asset: "token-x", From: "alice", To: "bob", Amount: 10},
			wantErr: ErrAssetMismatch,
		},
		{
			name:    "insufficient funds",
			params:  TransferParams{Asset: models.AssetNative, From: "alice", To: "bob", Amount: 101},
			wantErr: ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				_, err := svc.Transfer(tx, tt.params)
				return err
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransfersHistoryOrderAndPaging(t *testing.T) {
	svc, db := setupService(t)

	_, err := svc.Fund(context.Background(), "alice", models.AssetNative, 1000)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Transfer(tx, TransferParams{
				StreamID: "stream-1",
				Asset:    models.AssetNative,
				From:     "alice",
				To:       "bob",
				Amount:   int64(i * 10),
				Kind:     models.TransferWithdrawal,
			})
			return err
		})
		require.NoError(t, err)
	}

	history, err := svc.Transfers(context.Background(), "stream-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(30), history[0].Amount)
	assert.Equal(t, int64(20), history[1].Amount)

	rest, err := svc.Transfers(context.Background(), "stream-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(10), rest[0].Amount)

	// Funding transfers carry no stream id and stay out of stream history.
	none, err := svc.Transfers(context.Background(), "other-stream", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEscrowAddressDerivation(t *testing.T) {
	a := EscrowAddress("stream-1", "alice", 0)
	b := EscrowAddress("stream-1", "alice", 0)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, EscrowAddress("stream-1", "alice", 1))
	assert.NotEqual(t, a, EscrowAddress("stream-2", "alice", 0))
	assert.NotEqual(t, a, EscrowAddress("stream-1", "carol", 0))

	assert.True(t, IsEscrowAddress(a))
	assert.False(t, IsEscrowAddress("alice"))
}
