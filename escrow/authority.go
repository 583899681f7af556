package escrow

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Sementes usadas na derivação de endereços de programa.
var (
	EscrowSeed   = []byte("escrow")
	CustodySeed  = []byte("token-seed")
	MetadataSeed = []byte("metadata")
)

// DefaultMetadataProgramID é o programa de metadados de token que guarda
// criadores e royalties de cada mint.
var DefaultMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// Derive calcula o endereço de programa para (tag, subject) sob program, junto
// com o bump canônico. O endereço não tem chave privada e as mesmas entradas
// sempre produzem o mesmo endereço.
func Derive(tag []byte, subject, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{tag, subject[:]}, program)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("falha ao derivar %s/%s: %w", tag, subject, err)
	}
	return addr, bump, nil
}

// EscrowAuthority é a autoridade de custódia de um ativo listado, derivada do
// próprio endereço do registro de escrow.
func EscrowAuthority(record, program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := Derive(EscrowSeed, record, program)
	return addr, err
}

// UserAuthority é o endereço derivado de uma carteira com a semente de escrow.
func UserAuthority(user, program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := Derive(EscrowSeed, user, program)
	return addr, err
}

// CustodyAddress recria o endereço da conta de custódia a partir do bump
// informado pelo chamador, sem busca.
func CustodyAddress(record solana.PublicKey, bump uint8, program solana.PublicKey) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{CustodySeed, record[:], {bump}}, program)
}

// MetadataAddress é a conta de metadados do mint sob o programa de metadados.
func MetadataAddress(mint, metadataProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{MetadataSeed, metadataProgram[:], mint[:]}, metadataProgram)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("falha ao derivar metadados de %s: %w", mint, err)
	}
	return addr, nil
}
