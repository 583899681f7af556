package models

import "github.com/gagliardetto/solana-go"

// TokenAccount representa a conta de custódia que guarda as unidades de um ativo.
// Authority é quem pode movimentar a conta; é ela que muda de mãos na liquidação.
type TokenAccount struct {
	Address   solana.PublicKey `json:"address"`
	Mint      solana.PublicKey `json:"mint"`
	Authority solana.PublicKey `json:"authority"`
	Amount    uint64           `json:"amount"`
}
