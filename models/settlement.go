package models

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// SettlementKind identifica a transição de estado registrada no diário.
type SettlementKind string

const (
	SettlementList   SettlementKind = "list"
	SettlementBuy    SettlementKind = "buy"
	SettlementCancel SettlementKind = "cancel"
)

// Payout é uma transferência de valor efetuada durante uma compra.
type Payout struct {
	Recipient solana.PublicKey `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Royalty   bool             `json:"royalty"`
}

// Settlement é a entrada do diário gravada junto com cada operação bem-sucedida.
type Settlement struct {
	ID           string           `json:"id"`
	Kind         SettlementKind   `json:"kind"`
	Escrow       solana.PublicKey `json:"escrow"`
	Actor        solana.PublicKey `json:"actor"`
	NewAuthority solana.PublicKey `json:"new_authority"`
	Price        uint64           `json:"price"`
	Payouts      []Payout         `json:"payouts,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// RoyaltyTotal soma os valores pagos aos criadores.
func (s Settlement) RoyaltyTotal() uint64 {
	var total uint64
	for _, p := range s.Payouts {
		if p.Royalty {
			total += p.Amount
		}
	}
	return total
}
