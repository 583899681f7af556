package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
)

// BuyRequest são as contas e parâmetros de uma compra.
type BuyRequest struct {
	Buyer            Signer
	Asset            solana.PublicKey
	Escrow           solana.PublicKey
	Seller           solana.PublicKey
	Custody          solana.PublicKey
	BuyerAuthority   solana.PublicKey // derivado do comprador com a semente de escrow
	Metadata         solana.PublicKey
	CustodyAuthority solana.PublicKey // autoridade atual da custódia (derivada do registro)
	Creators         []solana.PublicKey
	ExpectedPrice    uint64
}

// Buy paga o preço listado (royalties aos criadores, restante ao vendedor),
// entrega a custódia ao comprador e encerra o registro.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*models.Settlement, error) {
	if err := requireSigner(req.Buyer); err != nil {
		return nil, e.reject(ctx, opBuy, req.Escrow, err)
	}

	return e.run(ctx, opBuy, req.Escrow, func(accounts storage.Accounts) (*models.Settlement, error) {
		record, err := loadListed(ctx, accounts, req.Escrow)
		if err != nil {
			return nil, err
		}
		if req.ExpectedPrice != record.Price {
			return nil, fmt.Errorf("%w: esperado %d, listado %d", ErrPriceMismatch, req.ExpectedPrice, record.Price)
		}
		if err := requireSame(ErrSellerMismatch, req.Seller, record.Seller); err != nil {
			return nil, err
		}
		if err := requireSame(ErrAssetMismatch, req.Asset, record.AssetID); err != nil {
			return nil, err
		}
		if req.Buyer.Key.Equals(req.Seller) {
			return nil, fmt.Errorf("%w: %s", ErrSelfTrade, req.Buyer.Key)
		}
		if err := requireDerived(ErrBuyerAuthorityMismatch, req.BuyerAuthority, func() (solana.PublicKey, error) {
			return UserAuthority(req.Buyer.Key, e.cfg.ProgramID)
		}); err != nil {
			return nil, err
		}
		if err := requireDerived(ErrMetadataMismatch, req.Metadata, func() (solana.PublicKey, error) {
			return MetadataAddress(record.AssetID, e.cfg.MetadataProgramID)
		}); err != nil {
			return nil, err
		}

		if err := e.verifyCustody(ctx, accounts, record, req.Custody, req.CustodyAuthority); err != nil {
			return nil, err
		}

		metadata, found, err := accounts.GetMetadata(ctx, req.Metadata)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, req.Metadata)
		}
		if err := requireSame(ErrMetadataMismatch, metadata.Mint, record.AssetID); err != nil {
			return nil, err
		}

		dist, err := Distribute(record.Price, metadata, req.Creators)
		if err != nil {
			return nil, err
		}
		balance, err := accounts.Balance(ctx, req.Buyer.Key)
		if err != nil {
			return nil, err
		}
		if balance < record.Price {
			return nil, fmt.Errorf("%w: saldo %d, preço %d", ErrInsufficientFunds, balance, record.Price)
		}

		payouts := dist.Payouts(record.Seller)
		for _, p := range payouts {
			if err := accounts.Transfer(ctx, req.Buyer.Key, p.Recipient, p.Amount); err != nil {
				if errors.Is(err, storage.ErrInsufficientFunds) {
					return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
				}
				return nil, err
			}
		}
		if err := accounts.SetTokenAuthority(ctx, record.CustodyAccount, req.Buyer.Key); err != nil {
			return nil, err
		}
		record.Initialized = false
		if err := accounts.PutEscrow(ctx, record); err != nil {
			return nil, err
		}

		s := e.newSettlement(models.SettlementBuy, record, req.Buyer.Key, req.Buyer.Key)
		s.Payouts = payouts
		return s, nil
	})
}

// verifyCustody confirma que a conta de custódia informada é a do registro e
// que ela continua sob a autoridade derivada do registro.
func (e *Engine) verifyCustody(ctx context.Context, accounts storage.Accounts, record models.EscrowRecord, custody, authority solana.PublicKey) error {
	if err := requireSame(ErrCustodyMismatch, custody, record.CustodyAccount); err != nil {
		return err
	}
	expected, err := EscrowAuthority(record.Address, e.cfg.ProgramID)
	if err != nil {
		return err
	}
	if err := requireSame(ErrEscrowAuthorityMismatch, authority, expected); err != nil {
		return err
	}
	token, found, err := accounts.GetTokenAccount(ctx, custody)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrCustodyNotFound, custody)
	}
	if err := requireSame(ErrCustodyAuthorityMismatch, token.Authority, expected); err != nil {
		return err
	}
	return nil
}
