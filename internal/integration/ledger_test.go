package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendata-gateway/go/internal/ledger"
	"github.com/opendata-gateway/go/internal/models"
)

func TestSystemAccountBootstrapIsIdempotent(t *testing.T) {
	app := NewTestApp(t)
	ctx := context.Background()

	// A second bootstrap must reuse the accounts created by the first.
	sourceID := app.Ledger.GlobalSource().ID
	require.NoError(t, app.Ledger.EnsureSystemAccounts(ctx))
	assert.Equal(t, sourceID, app.Ledger.GlobalSource().ID)

	source, err := app.Accounts.FindByRole(ctx, models.RoleGlobalSource)
	require.NoError(t, err)
	require.NotNil(t, source)
	assert.True(t, source.AllowNegativeBalance)
	assert.True(t, source.AcceptsOutput)
	assert.False(t, source.AcceptsInput)

	drain, err := app.Accounts.FindByRole(ctx, models.RoleGlobalDrain)
	require.NoError(t, err)
	require.NotNil(t, drain)
	assert.True(t, drain.AcceptsInput)
	assert.False(t, drain.AcceptsOutput)
}

func TestTransferWritesBothLegs(t *testing.T) {
	app := NewTestApp(t)
	ctx := context.Background()

	account := app.SeedConsumer("user-legs", 1000)

	transfer, err := app.Ledger.ChargeConsumption(ctx, "user-legs", 300, "metered call")
	require.NoError(t, err)

	// Balances moved.
	reread, err := app.Accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), reread.Balance)

	consumption, err := app.Accounts.FindByID(ctx, app.Ledger.Consumption().ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), consumption.Balance)

	// The stored entries reconcile with the account balances.
	transactions := models.NewTransactionRepository(app.Mongo)
	sum, err := transactions.SumForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, reread.Balance, sum)

	sum, err = transactions.SumForAccount(ctx, consumption.ID)
	require.NoError(t, err)
	assert.Equal(t, consumption.Balance, sum)

	// The transfer row links both signed entries.
	transfers := models.NewTransferRepository(app.Mongo)
	stored, err := transfers.FindByID(ctx, transfer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, account.ID, stored.FromAccountID)
	assert.Equal(t, consumption.ID, stored.ToAccountID)
	assert.NotEqual(t, stored.FromTransactionID, stored.ToTransactionID)
}

func TestInsufficientFundsLeavesNoTrace(t *testing.T) {
	app := NewTestApp(t)
	ctx := context.Background()

	account := app.SeedConsumer("user-poor", 100)

	_, err := app.Ledger.ChargeConsumption(ctx, "user-poor", 500, "metered call")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))

	// The failed transfer must not leave partial state behind.
	reread, err := app.Accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reread.Balance)

	transactions := models.NewTransactionRepository(app.Mongo)
	count, err := transactions.CountForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the seed deposit should exist")
}

func TestTransferRejectsNonPositiveAmounts(t *testing.T) {
	app := NewTestApp(t)
	ctx := context.Background()

	app.SeedConsumer("user-zero", 100)

	_, err := app.Ledger.ChargeConsumption(ctx, "user-zero", 0, "noop")
	assert.True(t, errors.Is(err, ledger.ErrAmountNotPositive))

	_, err = app.Ledger.ChargeConsumption(ctx, "user-zero", -50, "refund attempt")
	assert.True(t, errors.Is(err, ledger.ErrAmountNotPositive))
}

func TestDepositEndpoint(t *testing.T) {
	app := NewTestApp(t)
	account := app.SeedConsumer("user-http", 0)

	resp := app.AdminPOST("/accounts/"+account.ID.Hex()+"/deposit",
		map[string]any{"amount": 2500, "description": "card top-up"}, "")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse[struct {
		Data struct {
			Balance int64 `json:"balance"`
		} `json:"data"`
	}](t, resp)
	assert.Equal(t, int64(2500), result.Data.Balance)
}

func TestDepositRequiresAuth(t *testing.T) {
	app := NewTestApp(t)
	account := app.SeedConsumer("user-noauth", 0)

	resp := app.POST("/accounts/"+account.ID.Hex()+"/deposit", map[string]any{"amount": 100})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDepositIdempotencyReplay(t *testing.T) {
	app := NewTestApp(t)
	account := app.SeedConsumer("user-idem", 0)
	key := uuid.New().String()

	body := map[string]any{"amount": 1000, "description": "top-up"}

	first := app.AdminPOST("/accounts/"+account.ID.Hex()+"/deposit", body, key)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	// Same key: the stored response is replayed, no second transfer.
	second := app.AdminPOST("/accounts/"+account.ID.Hex()+"/deposit", body, key)
	defer second.Body.Close()
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("X-Idempotent-Replay"))

	reread, err := app.Accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), reread.Balance)
}

func TestWithdrawEndpointInsufficientFunds(t *testing.T) {
	app := NewTestApp(t)
	account := app.SeedConsumer("user-withdraw", 500)

	resp := app.AdminPOST("/accounts/"+account.ID.Hex()+"/withdraw",
		map[string]any{"amount": 900}, "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}
