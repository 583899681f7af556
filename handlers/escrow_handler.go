package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/services"

	"github.com/gagliardetto/solana-go"
)

// EscrowHandler lida com as instruções de liquidação e as leituras de escrow.
type EscrowHandler struct {
	Service *services.EscrowService
	logger  *slog.Logger
}

// NewEscrowHandler cria uma nova instância do handler de escrow.
func NewEscrowHandler(s *services.EscrowService, logger *slog.Logger) *EscrowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscrowHandler{Service: s, logger: logger}
}

// SignedInstruction é o envelope das instruções de liquidação. Signature é a
// assinatura ed25519 de Signer sobre os bytes exatos de Instruction.
type SignedInstruction struct {
	Instruction json.RawMessage  `json:"instruction"`
	Signer      solana.PublicKey `json:"signer"`
	Signature   string           `json:"signature"`
}

// signer devolve a conta assinante; Signed só é verdadeiro com assinatura válida.
func (in SignedInstruction) signer() escrow.Signer {
	s := escrow.Signer{Key: in.Signer}
	if in.Signature == "" || len(in.Instruction) == 0 {
		return s
	}
	sig, err := solana.SignatureFromBase58(in.Signature)
	if err != nil {
		return s
	}
	s.Signed = sig.Verify(in.Signer, in.Instruction)
	return s
}

// decodeSigned lê o envelope e decodifica a instrução em v.
func decodeSigned(w http.ResponseWriter, r *http.Request, v any) (escrow.Signer, bool) {
	var in SignedInstruction
	if !decodeBody(w, r, &in) {
		return escrow.Signer{}, false
	}
	if len(in.Instruction) == 0 {
		badRequest(w, "instrução ausente")
		return escrow.Signer{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(in.Instruction))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "instrução inválida: "+err.Error())
		return escrow.Signer{}, false
	}
	return in.signer(), true
}

// ListInstruction são as contas de uma listagem; o vendedor é o assinante.
type ListInstruction struct {
	Asset       solana.PublicKey `json:"asset"`
	Custody     solana.PublicKey `json:"custody"`
	Escrow      solana.PublicKey `json:"escrow"`
	CustodyBump uint8            `json:"custody_bump"`
	Price       uint64           `json:"price"`
	Index       uint8            `json:"index"`
}

// BuyInstruction são as contas de uma compra; o comprador é o assinante.
type BuyInstruction struct {
	Asset            solana.PublicKey   `json:"asset"`
	Escrow           solana.PublicKey   `json:"escrow"`
	Seller           solana.PublicKey   `json:"seller"`
	Custody          solana.PublicKey   `json:"custody"`
	BuyerAuthority   solana.PublicKey   `json:"buyer_authority"`
	Metadata         solana.PublicKey   `json:"metadata"`
	CustodyAuthority solana.PublicKey   `json:"custody_authority"`
	Creators         []solana.PublicKey `json:"creators"`
	Price            uint64             `json:"price"`
}

// CancelInstruction são as contas de um cancelamento; o vendedor é o assinante.
type CancelInstruction struct {
	EscrowAuthority solana.PublicKey `json:"escrow_authority"`
	Custody         solana.PublicKey `json:"custody"`
	Escrow          solana.PublicKey `json:"escrow"`
}

// List lista um ativo em custódia.
// POST /escrows/list
func (h *EscrowHandler) List(w http.ResponseWriter, r *http.Request) {
	var in ListInstruction
	seller, ok := decodeSigned(w, r, &in)
	if !ok {
		return
	}
	record, err := h.Service.List(r.Context(), escrow.ListRequest{
		Seller:      seller,
		Asset:       in.Asset,
		Custody:     in.Custody,
		Escrow:      in.Escrow,
		CustodyBump: in.CustodyBump,
		Price:       in.Price,
		Index:       in.Index,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// Buy compra um ativo listado.
// POST /escrows/buy
func (h *EscrowHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var in BuyInstruction
	buyer, ok := decodeSigned(w, r, &in)
	if !ok {
		return
	}
	settlement, err := h.Service.Buy(r.Context(), escrow.BuyRequest{
		Buyer:            buyer,
		Asset:            in.Asset,
		Escrow:           in.Escrow,
		Seller:           in.Seller,
		Custody:          in.Custody,
		BuyerAuthority:   in.BuyerAuthority,
		Metadata:         in.Metadata,
		CustodyAuthority: in.CustodyAuthority,
		Creators:         in.Creators,
		ExpectedPrice:    in.Price,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

// Cancel devolve o ativo ao vendedor.
// POST /escrows/cancel
func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var in CancelInstruction
	seller, ok := decodeSigned(w, r, &in)
	if !ok {
		return
	}
	settlement, err := h.Service.Cancel(r.Context(), escrow.CancelRequest{
		Seller:          seller,
		EscrowAuthority: in.EscrowAuthority,
		Custody:         in.Custody,
		Escrow:          in.Escrow,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

// GetEscrow obtém um registro de escrow.
// GET /escrows/{address}
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	record, err := h.Service.Get(r.Context(), address)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListActive obtém as listagens ativas.
// GET /escrows
func (h *EscrowHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.Active(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []models.EscrowRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetSettlements obtém o diário de um escrow.
// GET /escrows/{address}/settlements
func (h *EscrowHandler) GetSettlements(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	settlements, err := h.Service.Settlements(r.Context(), address)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if settlements == nil {
		settlements = []models.Settlement{}
	}
	writeJSON(w, http.StatusOK, settlements)
}

// Anchor prepara a transação que leva a custódia na Solana ao estado local.
// POST /escrows/{address}/anchor
func (h *EscrowHandler) Anchor(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	result, err := h.Service.Anchor(r.Context(), address)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
