package escrow

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
)

const (
	opList   = "list"
	opBuy    = "buy"
	opCancel = "cancel"
)

// ListRequest são as contas e parâmetros de uma listagem.
type ListRequest struct {
	Seller      Signer
	Asset       solana.PublicKey // mint do ativo
	Custody     solana.PublicKey // conta de custódia recém-criada, autoridade = vendedor
	Escrow      solana.PublicKey // armazenamento zerado do registro
	CustodyBump uint8
	Price       uint64
	Index       uint8
}

// List cria o registro de escrow e passa a autoridade da conta de custódia
// para o endereço derivado do próprio registro.
func (e *Engine) List(ctx context.Context, req ListRequest) (models.EscrowRecord, error) {
	if err := requireSigner(req.Seller); err != nil {
		return models.EscrowRecord{}, e.reject(ctx, opList, req.Escrow, err)
	}
	if err := requirePriceInRange(req.Price, e.cfg.MinPrice, e.cfg.MaxPrice); err != nil {
		return models.EscrowRecord{}, e.reject(ctx, opList, req.Escrow, err)
	}

	var record models.EscrowRecord
	_, err := e.run(ctx, opList, req.Escrow, func(accounts storage.Accounts) (*models.Settlement, error) {
		// Um endereço já gravado, mesmo liquidado e com preço zero, não volta a ser listado.
		existing, found, err := accounts.GetEscrow(ctx, req.Escrow)
		if err != nil {
			return nil, err
		}
		if found || !existing.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, req.Escrow)
		}

		custody, err := CustodyAddress(req.Escrow, req.CustodyBump, e.cfg.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("%w: bump %d: %v", ErrCustodyMismatch, req.CustodyBump, err)
		}
		if err := requireSame(ErrCustodyMismatch, req.Custody, custody); err != nil {
			return nil, err
		}
		token, found, err := accounts.GetTokenAccount(ctx, req.Custody)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrCustodyNotFound, req.Custody)
		}
		if err := requireSame(ErrCustodyMintMismatch, token.Mint, req.Asset); err != nil {
			return nil, err
		}
		if err := requireSame(ErrCustodyAuthorityMismatch, token.Authority, req.Seller.Key); err != nil {
			return nil, err
		}
		authority, err := EscrowAuthority(req.Escrow, e.cfg.ProgramID)
		if err != nil {
			return nil, err
		}

		record = models.EscrowRecord{
			Address:        req.Escrow,
			Initialized:    true,
			Seller:         req.Seller.Key,
			CustodyAccount: req.Custody,
			AssetID:        req.Asset,
			Price:          req.Price,
			Index:          req.Index,
		}
		if err := accounts.PutEscrow(ctx, record); err != nil {
			return nil, err
		}
		if err := accounts.SetTokenAuthority(ctx, req.Custody, authority); err != nil {
			return nil, err
		}
		return e.newSettlement(models.SettlementList, record, req.Seller.Key, authority), nil
	})
	if err != nil {
		return models.EscrowRecord{}, err
	}
	return record, nil
}
