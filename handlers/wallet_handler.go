package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ferreirogomes/custodia/services"

	"github.com/gagliardetto/solana-go"
)

// WalletHandler lida com saldos de carteiras.
type WalletHandler struct {
	Service *services.CustodyService
	logger  *slog.Logger
}

// NewWalletHandler cria uma nova instância do handler de carteiras.
func NewWalletHandler(s *services.CustodyService, logger *slog.Logger) *WalletHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletHandler{Service: s, logger: logger}
}

type walletResponse struct {
	Address solana.PublicKey `json:"address"`
	Balance uint64           `json:"balance"`
}

// Deposit credita saldo numa carteira.
// POST /wallets/{address}/deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	var requestBody struct {
		Amount uint64 `json:"amount"`
	}
	if !decodeBody(w, r, &requestBody) {
		return
	}

	balance, err := h.Service.Deposit(r.Context(), address, requestBody.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Address: address, Balance: balance})
}

// GetWallet obtém o saldo de uma carteira.
// GET /wallets/{address}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	balance, err := h.Service.Balance(r.Context(), address)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Address: address, Balance: balance})
}
