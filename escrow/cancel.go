package escrow

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
)

// CancelRequest são as contas de um cancelamento.
type CancelRequest struct {
	Seller          Signer
	EscrowAuthority solana.PublicKey // derivado do registro
	Custody         solana.PublicKey
	Escrow          solana.PublicKey
}

// Cancel devolve a autoridade da custódia diretamente ao vendedor e encerra o
// registro. Nenhum valor é movimentado.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*models.Settlement, error) {
	if err := requireSigner(req.Seller); err != nil {
		return nil, e.reject(ctx, opCancel, req.Escrow, err)
	}

	return e.run(ctx, opCancel, req.Escrow, func(accounts storage.Accounts) (*models.Settlement, error) {
		record, err := loadListed(ctx, accounts, req.Escrow)
		if err != nil {
			return nil, err
		}
		if !record.Seller.Equals(req.Seller.Key) {
			return nil, fmt.Errorf("%w: %s", ErrNotSeller, req.Seller.Key)
		}
		if err := e.verifyCustody(ctx, accounts, record, req.Custody, req.EscrowAuthority); err != nil {
			return nil, err
		}

		if err := accounts.SetTokenAuthority(ctx, record.CustodyAccount, record.Seller); err != nil {
			return nil, err
		}
		record.Initialized = false
		if err := accounts.PutEscrow(ctx, record); err != nil {
			return nil, err
		}
		return e.newSettlement(models.SettlementCancel, record, req.Seller.Key, record.Seller), nil
	})
}
