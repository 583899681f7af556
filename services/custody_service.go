package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrInvalidInput indica um pedido de alocação malformado.
	ErrInvalidInput = errors.New("entrada inválida")
	// ErrChainUnavailable indica que a integração com a Solana não está configurada.
	ErrChainUnavailable = errors.New("integração com a Solana indisponível")
)

// CustodyService aloca as contas que a liquidação apenas lê ou movimenta:
// metadados de ativos, contas de custódia e saldos de carteiras.
type CustodyService struct {
	Store  storage.Store
	config escrow.Config
}

// NewCustodyService cria o serviço de custódia.
func NewCustodyService(store storage.Store, cfg escrow.Config) *CustodyService {
	return &CustodyService{Store: store, config: cfg}
}

// RegisterAsset grava os metadados de mint no endereço derivado do programa de
// metadados.
func (s *CustodyService) RegisterAsset(ctx context.Context, mint solana.PublicKey, sellerFeeBasisPoints uint16, creators []models.Creator) (models.AssetMetadata, error) {
	if mint.IsZero() {
		return models.AssetMetadata{}, fmt.Errorf("%w: mint vazio", ErrInvalidInput)
	}
	if sellerFeeBasisPoints > 10_000 {
		return models.AssetMetadata{}, fmt.Errorf("%w: seller_fee_basis_points %d acima de 10000", ErrInvalidInput, sellerFeeBasisPoints)
	}
	for _, c := range creators {
		if c.Share > 100 {
			return models.AssetMetadata{}, fmt.Errorf("%w: participação %d do criador %s acima de 100", ErrInvalidInput, c.Share, c.Address)
		}
	}

	address, err := escrow.MetadataAddress(mint, s.config.MetadataProgramID)
	if err != nil {
		return models.AssetMetadata{}, err
	}
	metadata := models.AssetMetadata{
		Address:              address,
		Mint:                 mint,
		SellerFeeBasisPoints: sellerFeeBasisPoints,
		Creators:             creators,
	}
	err = s.Store.Atomically(ctx, func(accounts storage.Accounts) error {
		return accounts.PutMetadata(ctx, metadata)
	})
	if err != nil {
		return models.AssetMetadata{}, fmt.Errorf("falha ao salvar metadados de %s: %w", mint, err)
	}
	return metadata, nil
}

// Metadata busca os metadados de um mint.
func (s *CustodyService) Metadata(ctx context.Context, mint solana.PublicKey) (models.AssetMetadata, error) {
	address, err := escrow.MetadataAddress(mint, s.config.MetadataProgramID)
	if err != nil {
		return models.AssetMetadata{}, err
	}
	var (
		metadata models.AssetMetadata
		found    bool
	)
	err = s.Store.View(ctx, func(accounts storage.Accounts) error {
		metadata, found, err = accounts.GetMetadata(ctx, address)
		return err
	})
	if err != nil {
		return models.AssetMetadata{}, err
	}
	if !found {
		return models.AssetMetadata{}, fmt.Errorf("metadados de %s: %w", mint, storage.ErrNotFound)
	}
	return metadata, nil
}

// CustodyAccount é uma conta de custódia aberta junto com o bump que o
// vendedor informa ao listar.
type CustodyAccount struct {
	models.TokenAccount
	Bump uint8 `json:"bump"`
}

// OpenCustodyAccount abre a conta de custódia derivada do endereço de escrow
// que o vendedor vai usar, já sob a autoridade do vendedor.
func (s *CustodyService) OpenCustodyAccount(ctx context.Context, escrowAddress, mint, owner solana.PublicKey, amount uint64) (CustodyAccount, error) {
	if escrowAddress.IsZero() || mint.IsZero() || owner.IsZero() {
		return CustodyAccount{}, fmt.Errorf("%w: escrow, mint e owner são obrigatórios", ErrInvalidInput)
	}
	address, bump, err := escrow.Derive(escrow.CustodySeed, escrowAddress, s.config.ProgramID)
	if err != nil {
		return CustodyAccount{}, err
	}
	account, err := s.OpenTokenAccount(ctx, models.TokenAccount{
		Address:   address,
		Mint:      mint,
		Authority: owner,
		Amount:    amount,
	})
	if err != nil {
		return CustodyAccount{}, err
	}
	return CustodyAccount{TokenAccount: account, Bump: bump}, nil
}

// OpenTokenAccount abre uma conta de token num endereço escolhido pelo chamador.
func (s *CustodyService) OpenTokenAccount(ctx context.Context, account models.TokenAccount) (models.TokenAccount, error) {
	if account.Address.IsZero() || account.Mint.IsZero() || account.Authority.IsZero() {
		return models.TokenAccount{}, fmt.Errorf("%w: address, mint e authority são obrigatórios", ErrInvalidInput)
	}
	err := s.Store.Atomically(ctx, func(accounts storage.Accounts) error {
		return accounts.OpenTokenAccount(ctx, account)
	})
	if err != nil {
		return models.TokenAccount{}, fmt.Errorf("falha ao abrir conta de token %s: %w", account.Address, err)
	}
	return account, nil
}

// TokenAccount busca uma conta de token.
func (s *CustodyService) TokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, error) {
	var (
		account models.TokenAccount
		found   bool
	)
	err := s.Store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		account, found, err = accounts.GetTokenAccount(ctx, address)
		return err
	})
	if err != nil {
		return models.TokenAccount{}, err
	}
	if !found {
		return models.TokenAccount{}, fmt.Errorf("conta de token %s: %w", address, storage.ErrNotFound)
	}
	return account, nil
}

// Deposit credita amount na carteira owner e devolve o novo saldo.
func (s *CustodyService) Deposit(ctx context.Context, owner solana.PublicKey, amount uint64) (uint64, error) {
	if owner.IsZero() || amount == 0 {
		return 0, fmt.Errorf("%w: carteira e valor positivo são obrigatórios", ErrInvalidInput)
	}
	var balance uint64
	err := s.Store.Atomically(ctx, func(accounts storage.Accounts) error {
		if err := accounts.Deposit(ctx, owner, amount); err != nil {
			return err
		}
		var err error
		balance, err = accounts.Balance(ctx, owner)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("falha ao depositar em %s: %w", owner, err)
	}
	return balance, nil
}

// Balance devolve o saldo de uma carteira; carteiras desconhecidas têm saldo zero.
func (s *CustodyService) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var balance uint64
	err := s.Store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		balance, err = accounts.Balance(ctx, owner)
		return err
	})
	return balance, err
}
