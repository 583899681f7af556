package models

import "github.com/gagliardetto/solana-go"

// Creator é um criador declarado nos metadados do ativo, com sua participação nos royalties.
type Creator struct {
	Address solana.PublicKey `json:"address"`
	Share   uint8            `json:"share"` // Percentual (0-100) da taxa total
}

// AssetMetadata espelha a conta de metadados do ativo (somente leitura para a liquidação).
type AssetMetadata struct {
	Address              solana.PublicKey `json:"address"` // Endereço derivado da conta de metadados
	Mint                 solana.PublicKey `json:"mint"`
	SellerFeeBasisPoints uint16           `json:"seller_fee_basis_points"`
	Creators             []Creator        `json:"creators,omitempty"`
}
