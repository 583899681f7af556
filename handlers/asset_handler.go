package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/services"

	"github.com/gagliardetto/solana-go"
)

// AssetHandler lida com requisições HTTP relacionadas a metadados de ativos.
type AssetHandler struct {
	Service *services.CustodyService
	logger  *slog.Logger
}

// NewAssetHandler cria uma nova instância do handler de ativos.
func NewAssetHandler(s *services.CustodyService, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{Service: s, logger: logger}
}

// RegisterAsset grava os metadados (royalties e criadores) de um mint.
// POST /assets
func (h *AssetHandler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Mint                 solana.PublicKey `json:"mint"`
		SellerFeeBasisPoints uint16           `json:"seller_fee_basis_points"`
		Creators             []models.Creator `json:"creators"`
	}
	if !decodeBody(w, r, &requestBody) {
		return
	}

	metadata, err := h.Service.RegisterAsset(r.Context(), requestBody.Mint, requestBody.SellerFeeBasisPoints, requestBody.Creators)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, metadata)
}

// GetAsset obtém os metadados de um mint.
// GET /assets/{mint}
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	mint, ok := addressParam(w, r, "mint")
	if !ok {
		return
	}
	metadata, err := h.Service.Metadata(r.Context(), mint)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}
