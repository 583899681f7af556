package storage

import (
	"context"
	"errors"

	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrNotFound indica que a conta pedida não existe no armazenamento.
	ErrNotFound = errors.New("conta não encontrada")
	// ErrAccountExists indica tentativa de abrir uma conta que já existe.
	ErrAccountExists = errors.New("conta já existe")
	// ErrInsufficientFunds indica saldo insuficiente para uma transferência.
	ErrInsufficientFunds = errors.New("saldo insuficiente")
	// ErrBalanceOverflow indica que um crédito ultrapassaria o limite do saldo.
	ErrBalanceOverflow = errors.New("saldo excede o limite representável")
	// ErrReadOnly indica escrita dentro de uma unidade de trabalho somente leitura.
	ErrReadOnly = errors.New("unidade de trabalho somente leitura")
)

// Accounts é a visão do armazenamento de contas dentro de uma unidade de trabalho.
// Nada do que é feito através dela fica visível se a unidade de trabalho falhar.
type Accounts interface {
	// GetEscrow devolve o registro no endereço; found=false significa armazenamento zerado.
	GetEscrow(ctx context.Context, address solana.PublicKey) (models.EscrowRecord, bool, error)
	PutEscrow(ctx context.Context, record models.EscrowRecord) error
	ActiveEscrows(ctx context.Context) ([]models.EscrowRecord, error)

	OpenTokenAccount(ctx context.Context, account models.TokenAccount) error
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, bool, error)
	SetTokenAuthority(ctx context.Context, address, authority solana.PublicKey) error

	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	Deposit(ctx context.Context, owner solana.PublicKey, amount uint64) error
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error

	PutMetadata(ctx context.Context, metadata models.AssetMetadata) error
	GetMetadata(ctx context.Context, address solana.PublicKey) (models.AssetMetadata, bool, error)

	RecordSettlement(ctx context.Context, settlement models.Settlement) error
	Settlements(ctx context.Context, escrow solana.PublicKey) ([]models.Settlement, error)
}

// Store é o armazenamento externo de contas indexado por endereço.
type Store interface {
	// Atomically executa fn numa unidade de trabalho: se fn devolver erro,
	// nenhuma mutação feita por ela é persistida.
	Atomically(ctx context.Context, fn func(Accounts) error) error
	// View executa fn numa unidade de trabalho somente leitura, sem disputar
	// o bloqueio de escrita; escritas feitas por fn falham.
	View(ctx context.Context, fn func(Accounts) error) error
	Close() error
}

// maxBalance é o maior saldo aceito; os backends SQL guardam saldos em BIGINT.
const maxBalance = uint64(1<<63 - 1)

func credit(balance, amount uint64) (uint64, error) {
	if amount > maxBalance || balance > maxBalance-amount {
		return 0, ErrBalanceOverflow
	}
	return balance + amount, nil
}
