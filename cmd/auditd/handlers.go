package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/http/response"
	"github.com/godamri/helix-audit/pkg/contextx"
)

const (
	ActorHeader   = "X-Actor-Id"
	ReasonHeader  = "X-Audit-Reason"
	TicketHeader  = "X-Change-Ticket"
	ServiceHeader = "X-Source-Service"
)

type amountRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

type openRequest struct {
	ID      string `json:"id" validate:"required,alphanum,max=32"`
	Initial int64  `json:"initial" validate:"gte=0"`
}

type balanceResponse struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
}

type bankHandler struct {
	bank     *Bank
	validate *validator.Validate
}

func newBankHandler(b *Bank) *bankHandler {
	return &bankHandler{bank: b, validate: validator.New()}
}

func (h *bankHandler) routes(r chi.Router) {
	r.Post("/accounts", h.open)
	r.Get("/accounts/{id}", h.balance)
	r.Post("/accounts/{id}/deposit", h.deposit)
	r.Post("/accounts/{id}/withdraw", h.withdraw)
}

// identity copies caller identity set by the upstream gateway onto the
// context.
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if actor := r.Header.Get(ActorHeader); actor != "" {
			ctx = contextx.WithAuthPrincipalID(ctx, actor)
		}
		ctx = contextx.WithProvenance(ctx, contextx.Provenance{
			SourceService: r.Header.Get(ServiceHeader),
			Reason:        r.Header.Get(ReasonHeader),
			ChangeTicket:  r.Header.Get(TicketHeader),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *bankHandler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.bank.Open(r.Context(), req.ID, req.Initial); err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, balanceResponse{ID: req.ID, Balance: req.Initial})
}

func (h *bankHandler) balance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := h.bank.Balance(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, balanceResponse{ID: id, Balance: bal})
}

func (h *bankHandler) deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.bank.Deposit)
}

func (h *bankHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.bank.Withdraw)
}

func (h *bankHandler) move(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string, amount int64) (int64, error)) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	bal, err := op(r.Context(), id, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, balanceResponse{ID: id, Balance: bal})
}

func (h *bankHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.ErrorJSON(w, r, 0, response.ErrBadRequest, "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		response.ErrorJSON(w, r, 0, response.ErrValidation, err.Error())
		return false
	}
	return true
}

func (h *bankHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *audit.ResolutionError
	switch {
	case errors.Is(err, ErrAccountNotFound):
		response.ErrorJSON(w, r, 0, response.ErrNotFound, err.Error())
	case errors.Is(err, ErrAccountExists):
		response.ErrorJSON(w, r, 0, response.ErrAlreadyExists, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		response.ErrorJSON(w, r, 0, response.ErrRuleViolation, err.Error())
	case errors.As(err, &rejected):
		response.ErrorJSON(w, r, 0, response.ErrAuditRejected, "operation could not be audited")
	default:
		response.ErrorJSON(w, r, 0, response.ErrSystem, "internal error")
	}
}
