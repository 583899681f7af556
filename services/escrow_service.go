package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
)

// ChainClient é o acesso à Solana usado para ancorar a custódia na rede.
type ChainClient interface {
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, bool, error)
	PrepareSetAuthorityTransaction(ctx context.Context, custody, currentAuthority, newAuthority solana.PublicKey) (string, error)
}

// EscrowService expõe as operações de liquidação e as leituras do diário.
type EscrowService struct {
	Engine *escrow.Engine
	Store  storage.Store
	Chain  ChainClient // nil quando não há RPC configurado
	logger *slog.Logger
}

// NewEscrowService cria o serviço de escrow. chain pode ser nil.
func NewEscrowService(engine *escrow.Engine, store storage.Store, chain ChainClient, logger *slog.Logger) *EscrowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscrowService{Engine: engine, Store: store, Chain: chain, logger: logger}
}

func (s *EscrowService) List(ctx context.Context, req escrow.ListRequest) (models.EscrowRecord, error) {
	return s.Engine.List(ctx, req)
}

func (s *EscrowService) Buy(ctx context.Context, req escrow.BuyRequest) (*models.Settlement, error) {
	return s.Engine.Buy(ctx, req)
}

func (s *EscrowService) Cancel(ctx context.Context, req escrow.CancelRequest) (*models.Settlement, error) {
	return s.Engine.Cancel(ctx, req)
}

// Get devolve o registro em address, ativo ou já liquidado.
func (s *EscrowService) Get(ctx context.Context, address solana.PublicKey) (models.EscrowRecord, error) {
	record, found, err := s.Engine.Escrow(ctx, address)
	if err != nil {
		return models.EscrowRecord{}, err
	}
	if !found {
		return models.EscrowRecord{}, fmt.Errorf("escrow %s: %w", address, storage.ErrNotFound)
	}
	return record, nil
}

// Active lista as listagens ainda não liquidadas.
func (s *EscrowService) Active(ctx context.Context) ([]models.EscrowRecord, error) {
	var records []models.EscrowRecord
	err := s.Store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		records, err = accounts.ActiveEscrows(ctx)
		return err
	})
	return records, err
}

// Settlements devolve o diário de um escrow em ordem de gravação.
func (s *EscrowService) Settlements(ctx context.Context, address solana.PublicKey) ([]models.Settlement, error) {
	var settlements []models.Settlement
	err := s.Store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		settlements, err = accounts.Settlements(ctx, address)
		return err
	})
	return settlements, err
}

// AnchorResult descreve o estado da custódia na rede em relação ao registro local.
type AnchorResult struct {
	Escrow            solana.PublicKey `json:"escrow"`
	Custody           solana.PublicKey `json:"custody"`
	OnChainAuthority  solana.PublicKey `json:"on_chain_authority"`
	ExpectedAuthority solana.PublicKey `json:"expected_authority"`
	InSync            bool             `json:"in_sync"`
	// ProgramAuthority indica que a custódia na rede ainda está sob a PDA do
	// escrow; nenhuma carteira assina essa troca, só o programa on-chain.
	ProgramAuthority  bool             `json:"program_authority,omitempty"`
	Transaction       string           `json:"transaction,omitempty"` // base64, assinada pelo FeePayer
}

// Anchor compara a autoridade da conta de custódia na Solana com a autoridade
// registrada localmente. Se divergirem e a autoridade na rede for uma carteira,
// prepara a transação SetAuthority que leva a rede ao estado local; essa
// carteira assina do lado do cliente. Se a autoridade na rede for a PDA do
// escrow, devolve InSync=false e ProgramAuthority=true, sem transação.
func (s *EscrowService) Anchor(ctx context.Context, address solana.PublicKey) (AnchorResult, error) {
	if s.Chain == nil {
		return AnchorResult{}, ErrChainUnavailable
	}
	record, err := s.Get(ctx, address)
	if err != nil {
		return AnchorResult{}, err
	}

	var (
		local models.TokenAccount
		found bool
	)
	err = s.Store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		local, found, err = accounts.GetTokenAccount(ctx, record.CustodyAccount)
		return err
	})
	if err != nil {
		return AnchorResult{}, err
	}
	if !found {
		return AnchorResult{}, fmt.Errorf("custódia %s: %w", record.CustodyAccount, storage.ErrNotFound)
	}

	onChain, found, err := s.Chain.GetTokenAccount(ctx, record.CustodyAccount)
	if err != nil {
		return AnchorResult{}, err
	}
	if !found {
		return AnchorResult{}, fmt.Errorf("custódia %s na Solana: %w", record.CustodyAccount, storage.ErrNotFound)
	}

	result := AnchorResult{
		Escrow:            record.Address,
		Custody:           record.CustodyAccount,
		OnChainAuthority:  onChain.Authority,
		ExpectedAuthority: local.Authority,
		InSync:            onChain.Authority.Equals(local.Authority),
	}
	if result.InSync {
		return result, nil
	}

	escrowAuthority, err := escrow.EscrowAuthority(record.Address, s.Engine.Config().ProgramID)
	if err != nil {
		return AnchorResult{}, err
	}
	if onChain.Authority.Equals(escrowAuthority) {
		result.ProgramAuthority = true
		s.logger.WarnContext(ctx, "custódia presa à PDA do escrow; ancoragem exige o programa on-chain",
			"escrow", address,
			"custody", record.CustodyAccount,
			"expected", local.Authority,
		)
		return result, nil
	}

	result.Transaction, err = s.Chain.PrepareSetAuthorityTransaction(ctx, record.CustodyAccount, onChain.Authority, local.Authority)
	if err != nil {
		return AnchorResult{}, fmt.Errorf("falha ao preparar ancoragem de %s: %w", address, err)
	}
	s.logger.InfoContext(ctx, "ancoragem preparada",
		"escrow", address,
		"custody", record.CustodyAccount,
		"from", onChain.Authority,
		"to", local.Authority,
	)
	return result, nil
}
