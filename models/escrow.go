package models

import "github.com/gagliardetto/solana-go"

// EscrowRecord representa uma listagem ativa (ou já liquidada) de um ativo em custódia.
// O registro é guardado no endereço escolhido pelo vendedor no momento da listagem.
type EscrowRecord struct {
	Address        solana.PublicKey `json:"address"`
	Initialized    bool             `json:"initialized"`     // true enquanto a listagem não foi comprada nem cancelada
	Seller         solana.PublicKey `json:"seller"`          // Quem recebe o pagamento ou recupera o ativo
	CustodyAccount solana.PublicKey `json:"custody_account"` // Conta que guarda as unidades do ativo
	AssetID        solana.PublicKey `json:"asset_id"`        // Mint do ativo vendido
	Price          uint64           `json:"price"`
	Index          uint8            `json:"index"`
}

// IsZero indica se o armazenamento do registro ainda está zerado (nunca listado).
func (r EscrowRecord) IsZero() bool {
	return !r.Initialized && r.Price == 0
}
