package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/services"

	"github.com/gagliardetto/solana-go"
)

// TokenHandler lida com requisições HTTP relacionadas a contas de token.
type TokenHandler struct {
	Service *services.CustodyService
	logger  *slog.Logger
}

// NewTokenHandler cria uma nova instância do handler de contas de token.
func NewTokenHandler(s *services.CustodyService, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{Service: s, logger: logger}
}

// OpenTokenAccount abre uma conta de token. Com "escrow" preenchido a conta é
// aberta no endereço de custódia derivado e a resposta traz o bump.
// POST /token-accounts
func (h *TokenHandler) OpenTokenAccount(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Address   solana.PublicKey `json:"address"`
		Escrow    solana.PublicKey `json:"escrow"`
		Mint      solana.PublicKey `json:"mint"`
		Authority solana.PublicKey `json:"authority"`
		Amount    uint64           `json:"amount"`
	}
	if !decodeBody(w, r, &requestBody) {
		return
	}

	if !requestBody.Escrow.IsZero() {
		account, err := h.Service.OpenCustodyAccount(r.Context(), requestBody.Escrow, requestBody.Mint, requestBody.Authority, requestBody.Amount)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)
		return
	}

	account, err := h.Service.OpenTokenAccount(r.Context(), models.TokenAccount{
		Address:   requestBody.Address,
		Mint:      requestBody.Mint,
		Authority: requestBody.Authority,
		Amount:    requestBody.Amount,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetTokenAccount obtém uma conta de token.
// GET /token-accounts/{address}
func (h *TokenHandler) GetTokenAccount(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	account, err := h.Service.TokenAccount(r.Context(), address)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
