package ledger

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/opendata-gateway/go/internal/db"
	"github.com/opendata-gateway/go/internal/logger"
	"github.com/opendata-gateway/go/internal/metrics"
	"github.com/opendata-gateway/go/internal/models"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAmountNotPositive       = errors.New("amount must be greater than zero")
	ErrSourceRejectsOutput     = errors.New("source account does not accept output")
	ErrDestinationRejectsInput = errors.New("destination account does not accept input")
)

// Service is the only path by which money moves between accounts. Every
// Transfer produces exactly one transfer row and two transaction rows, and
// applies both balance deltas, inside one Mongo session transaction:
// all of it commits or none of it does.
type Service struct {
	mongo        *db.Mongo
	accounts     *models.AccountRepository
	transfers    *models.TransferRepository
	transactions *models.TransactionRepository

	source      *models.Account
	drain       *models.Account
	consumption *models.Account
}

func New(m *db.Mongo, accounts *models.AccountRepository, transfers *models.TransferRepository, transactions *models.TransactionRepository) *Service {
	return &Service{
		mongo:        m,
		accounts:     accounts,
		transfers:    transfers,
		transactions: transactions,
	}
}

// EnsureSystemAccounts provisions the three system singletons if absent.
// Safe to call concurrently from multiple instances: creation races resolve
// through the unique role index, losers read back the winner's document.
func (s *Service) EnsureSystemAccounts(ctx context.Context) error {
	source, err := s.accounts.EnsureByRole(ctx, &models.Account{
		Balance:              0,
		AcceptsInput:         false,
		AcceptsOutput:        true,
		AllowNegativeBalance: true,
		Meta:                 map[string]string{"role": models.RoleGlobalSource},
	})
	if err != nil {
		return err
	}

	drain, err := s.accounts.EnsureByRole(ctx, &models.Account{
		Balance:       0,
		AcceptsInput:  true,
		AcceptsOutput: false,
		Meta:          map[string]string{"role": models.RoleGlobalDrain},
	})
	if err != nil {
		return err
	}

	consumption, err := s.accounts.EnsureByRole(ctx, &models.Account{
		Balance:       0,
		AcceptsInput:  true,
		AcceptsOutput: false,
		Meta:          map[string]string{"role": models.RoleConsumption},
	})
	if err != nil {
		return err
	}

	s.source, s.drain, s.consumption = source, drain, consumption

	logger.Info("system accounts ready",
		zap.String("source", source.ID.Hex()),
		zap.String("drain", drain.ID.Hex()),
		zap.String("consumption", consumption.ID.Hex()),
	)
	return nil
}

// GlobalSource returns the singleton account money enters the ledger from
func (s *Service) GlobalSource() *models.Account { return s.source }

// GlobalDrain returns the singleton account money leaves the ledger through
func (s *Service) GlobalDrain() *models.Account { return s.drain }

// Consumption returns the sink account metered fees settle into
func (s *Service) Consumption() *models.Account { return s.consumption }

// AccountForUser returns the user's account, creating it if absent
func (s *Service) AccountForUser(ctx context.Context, userID string) (*models.Account, error) {
	return s.accounts.EnsureForUser(ctx, userID)
}

// Transfer moves amount from one account to another. Fails without side
// effects when either account is missing, the source rejects output, the
// destination rejects input, or the source balance is insufficient and the
// source does not allow a negative balance.
func (s *Service) Transfer(ctx context.Context, fromID, toID primitive.ObjectID, amount int64, description string) (*models.Transfer, error) {
	if amount <= 0 {
		return nil, ErrAmountNotPositive
	}

	session, err := s.mongo.Client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return s.transferTx(sc, fromID, toID, amount, description)
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerTransfers.Inc()
	return result.(*models.Transfer), nil
}

func (s *Service) transferTx(sc mongo.SessionContext, fromID, toID primitive.ObjectID, amount int64, description string) (*models.Transfer, error) {
	from, err := s.accounts.FindByID(sc, fromID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, ErrAccountNotFound
	}

	to, err := s.accounts.FindByID(sc, toID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, ErrAccountNotFound
	}

	if !from.AcceptsOutput {
		return nil, ErrSourceRejectsOutput
	}
	if !to.AcceptsInput {
		return nil, ErrDestinationRejectsInput
	}

	now := time.Now()
	transferID := primitive.NewObjectID()
	debitID := primitive.NewObjectID()
	creditID := primitive.NewObjectID()

	transfer := &models.Transfer{
		ID:                transferID,
		FromAccountID:     from.ID,
		ToAccountID:       to.ID,
		Amount:            amount,
		Description:       description,
		FromTransactionID: debitID,
		ToTransactionID:   creditID,
		CreatedAt:         now,
	}
	if err := s.transfers.Insert(sc, transfer); err != nil {
		return nil, err
	}

	debit := &models.Transaction{
		ID:          debitID,
		AccountID:   from.ID,
		TransferID:  transferID,
		Amount:      -amount,
		Description: description,
		CreatedAt:   now,
	}
	credit := &models.Transaction{
		ID:          creditID,
		AccountID:   to.ID,
		TransferID:  transferID,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	}
	if err := s.transactions.InsertPair(sc, debit, credit); err != nil {
		return nil, err
	}

	// The guarded update is the authoritative funds check: under concurrent
	// transfers against the same account, only updates that keep the balance
	// non-negative match. Returning an error aborts the whole transaction.
	ok, err := s.accounts.ApplyDelta(sc, from.ID, -amount, !from.AllowNegativeBalance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientFunds
	}

	if _, err := s.accounts.ApplyDelta(sc, to.ID, amount, false); err != nil {
		return nil, err
	}

	return transfer, nil
}

// Deposit moves amount from the global source into the given account.
// Integration point for the external top-up flow.
func (s *Service) Deposit(ctx context.Context, accountID primitive.ObjectID, amount int64, description string) (*models.Transfer, error) {
	if description == "" {
		description = "deposit"
	}
	return s.Transfer(ctx, s.source.ID, accountID, amount, description)
}

// Withdraw moves amount from the given account into the global drain
func (s *Service) Withdraw(ctx context.Context, accountID primitive.ObjectID, amount int64, description string) (*models.Transfer, error) {
	if description == "" {
		description = "withdrawal"
	}
	return s.Transfer(ctx, accountID, s.drain.ID, amount, description)
}

// ChargeConsumption settles a metered call fee: user account into the
// consumption sink.
func (s *Service) ChargeConsumption(ctx context.Context, userID string, amount int64, description string) (*models.Transfer, error) {
	account, err := s.AccountForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, account.ID, s.consumption.ID, amount, description)
}
