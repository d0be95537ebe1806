package postgres_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	"github.com/honeynil/ResaleServiceTochka/internal/repository"
	postgres "github.com/honeynil/ResaleServiceTochka/internal/repository/postgres"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresWalletRepository_Apply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)
	ctx := context.Background()

	deposit := models.LedgerEntry{
		UserID:    1,
		Type:      models.TypeDeposit,
		Amount:    decimal.RequireFromString("250.50"),
		Reference: "admin:7",
	}

	t.Run("InvalidType", func(t *testing.T) {
		_, err := repo.Apply(ctx, models.LedgerEntry{UserID: 1, Type: "gift", Amount: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionType)
	})

	t.Run("WrongSign", func(t *testing.T) {
		_, err := repo.Apply(ctx, models.LedgerEntry{UserID: 1, Type: models.TypeWithdrawal, Amount: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("Success", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectBegin()
		expectBalanceLock(mock, 1, "100.00")
		mock.ExpectExec(regexp.QuoteMeta(updateBalanceSQL)).
			WithArgs("350.5", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(insertWalletTx)).
			WithArgs(int64(1), models.TypeDeposit, "250.5", "350.5", "admin:7", "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))
		mock.ExpectCommit()

		wt, err := repo.Apply(ctx, deposit)
		require.NoError(t, err)
		assert.Equal(t, int64(10), wt.ID)
		assert.Equal(t, "350.50", wt.BalanceAfter.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		mock.ExpectBegin()
		expectBalanceLock(mock, 1, "5.00")
		mock.ExpectRollback()

		_, err := repo.Apply(ctx, models.LedgerEntry{UserID: 1, Type: models.TypeWithdrawal, Amount: decimal.NewFromInt(-10)})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UserNotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockBalanceQuery)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectRollback()

		_, err := repo.Apply(ctx, deposit)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockBalanceQuery)).
			WithArgs(int64(1)).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback().WillReturnError(fmt.Errorf("rollback error"))

		_, err := repo.Apply(ctx, deposit)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "rollback failed")
		assert.Contains(t, err.Error(), "database error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitError", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectBegin()
		expectBalanceLock(mock, 1, "100.00")
		mock.ExpectExec(regexp.QuoteMeta(updateBalanceSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(insertWalletTx)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))
		mock.ExpectCommit().WillReturnError(fmt.Errorf("commit error"))

		_, err := repo.Apply(ctx, deposit)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresWalletRepository_ListTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM wallet_transactions WHERE user_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`)).
		WithArgs(int64(1), 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "amount", "balance_after", "reference", "description", "created_at"}).
			AddRow(int64(2), int64(1), "purchase", "-40.00", "960.00", "order:1", "", now).
			AddRow(int64(1), int64(1), "deposit", "1000.00", "1000.00", "payment:x", "", now))

	txs, total, err := repo.ListTransactions(context.Background(), 1, repository.NewPage(1, 20))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, txs, 2)
	// newest first, and each balance_after follows from the previous one
	assert.True(t, txs[1].BalanceAfter.Add(txs[0].Amount).Equal(txs[0].BalanceAfter))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWalletRepository_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresWalletRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM users WHERE id = $1`)).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("960.00"))

		balance, err := repo.GetBalance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "960.00", balance.StringFixed(2))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM users WHERE id = $1`)).
			WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		_, err := repo.GetBalance(context.Background(), 2)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
	})
}
