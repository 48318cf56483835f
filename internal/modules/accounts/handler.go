package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/httputil"
	"github.com/opendata-gateway/go/internal/ledger"
	"github.com/opendata-gateway/go/internal/logger"
	"github.com/opendata-gateway/go/internal/models"
	"github.com/opendata-gateway/go/internal/validation"
)

// Handler exposes the ledger-ops surface: balance reads and the external
// top-up / payout integration points.
type Handler struct {
	ledger   *ledger.Service
	accounts *models.AccountRepository
}

func NewHandler(svc *ledger.Service, accounts *models.AccountRepository) *Handler {
	return &Handler{ledger: svc, accounts: accounts}
}

type movementRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=256"`
}

type movementResponse struct {
	TransferID string `json:"transferId"`
	AccountID  string `json:"accountId"`
	Amount     int64  `json:"amount"`
	Balance    int64  `json:"balance"`
}

// GetAccount handles reading one account
//
//	@Summary		Get account
//	@Description	Read an account's balance and flags.
//	@Tags			accounts
//	@Produce		json
//	@Param			id	path		string	true	"Account ID"
//	@Success		200	{object}	httputil.APIResponse{data=models.AccountResponse}	"Account found"
//	@Failure		404	{object}	httputil.ErrorResponse								"Account not found"
//	@Router			/accounts/{id} [get]
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		httputil.WriteAPIError(w, constants.ErrInvalidRequestBody.WithMessage("invalid account id"))
		return
	}

	account, err := h.accounts.FindByID(r.Context(), id)
	if err != nil {
		logger.Error("account lookup failed", zap.Error(err))
		httputil.WriteAPIError(w, constants.ErrInternalError)
		return
	}
	if account == nil {
		httputil.WriteAPIError(w, constants.ErrAccountNotFound)
		return
	}

	httputil.WriteAPISuccess(w, http.StatusOK, "account found", account.ToResponse())
}

// Deposit handles an external top-up landing on an account
//
//	@Summary		Deposit funds
//	@Description	Credit an account from the global source. Called by the payment integration after an external top-up settles.
//	@Tags			accounts
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header		string			false	"Idempotency key for request deduplication"
//	@Param			id				path		string			true	"Account ID"
//	@Param			request			body		movementRequest	true	"Deposit request"
//	@Success		200				{object}	httputil.APIResponse{data=movementResponse}	"Transfer settled"
//	@Failure		401				{object}	httputil.ErrorResponse						"Unauthorized"
//	@Failure		404				{object}	httputil.ErrorResponse						"Account not found"
//	@Security		BearerAuth
//	@Router			/accounts/{id}/deposit [post]
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Deposit)
}

// Withdraw handles a payout leaving an account
//
//	@Summary		Withdraw funds
//	@Description	Debit an account into the global drain. The account balance must cover the full amount.
//	@Tags			accounts
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header		string			false	"Idempotency key for request deduplication"
//	@Param			id				path		string			true	"Account ID"
//	@Param			request			body		movementRequest	true	"Withdrawal request"
//	@Success		200				{object}	httputil.APIResponse{data=movementResponse}	"Transfer settled"
//	@Failure		401				{object}	httputil.ErrorResponse						"Unauthorized"
//	@Failure		402				{object}	httputil.ErrorResponse						"Insufficient funds"
//	@Security		BearerAuth
//	@Router			/accounts/{id}/withdraw [post]
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Withdraw)
}

func (h *Handler) move(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id primitive.ObjectID, amount int64, description string) (*models.Transfer, error),
) {
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		httputil.WriteAPIError(w, constants.ErrInvalidRequestBody.WithMessage("invalid account id"))
		return
	}

	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteAPIError(w, constants.ErrInvalidRequestBody)
		return
	}
	if err := validation.Validate(req); err != nil {
		httputil.WriteAPIError(w, constants.ErrInvalidRequestBody.WithMessage(err.Error()))
		return
	}

	transfer, err := op(r.Context(), id, req.Amount, req.Description)
	if err != nil {
		httputil.WriteAPIError(w, mapLedgerError(err))
		return
	}

	account, err := h.accounts.FindByID(r.Context(), id)
	if err != nil || account == nil {
		logger.Error("account re-read after transfer failed", zap.Error(err))
		httputil.WriteAPIError(w, constants.ErrInternalError)
		return
	}

	httputil.WriteAPISuccess(w, http.StatusOK, "transfer settled", movementResponse{
		TransferID: transfer.ID.Hex(),
		AccountID:  id.Hex(),
		Amount:     req.Amount,
		Balance:    account.Balance,
	})
}

func mapLedgerError(err error) constants.APIError {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return constants.ErrAccountNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return constants.ErrInsufficientFunds
	case errors.Is(err, ledger.ErrAmountNotPositive):
		return constants.ErrAmountNotPositive
	case errors.Is(err, ledger.ErrSourceRejectsOutput),
		errors.Is(err, ledger.ErrDestinationRejectsInput):
		return constants.APIError{
			Code:    constants.CodeInvalidState,
			Message: err.Error(),
			Status:  http.StatusConflict,
		}
	default:
		logger.Error("ledger operation failed", zap.Error(err))
		return constants.ErrInternalError
	}
}
