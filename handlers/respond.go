package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/services"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// errorBody é o corpo JSON devolvido em qualquer falha.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var kindStatus = map[escrow.Kind]int{
	escrow.KindAuthorization:     http.StatusUnauthorized,
	escrow.KindInvalidParameter:  http.StatusBadRequest,
	escrow.KindStateConflict:     http.StatusConflict,
	escrow.KindAccountMismatch:   http.StatusUnprocessableEntity,
	escrow.KindArithmetic:        http.StatusUnprocessableEntity,
	escrow.KindInsufficientFunds: http.StatusPaymentRequired,
}

// classify traduz um erro em status HTTP e no kind exposto ao cliente.
func classify(err error) (int, string) {
	if kind := escrow.KindOf(err); kind != escrow.KindUnknown {
		if status, ok := kindStatus[kind]; ok {
			return status, string(kind)
		}
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrAccountExists):
		return http.StatusConflict, "state_conflict"
	case errors.Is(err, storage.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity, "arithmetic"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, services.ErrChainUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, string(escrow.KindUnknown)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, kind := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "falha ao atender requisição", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "erro interno"
	}
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message, Kind: string(escrow.KindInvalidParameter)})
}

// decodeBody lê o corpo JSON da requisição em v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "corpo inválido: "+err.Error())
		return false
	}
	return true
}

// addressParam lê um endereço base58 do caminho.
func addressParam(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "endereço inválido em "+name)
		return solana.PublicKey{}, false
	}
	return key, true
}
