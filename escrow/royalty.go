package escrow

import (
	"fmt"
	"math/bits"

	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
)

const (
	maxBasisPoints = 10_000
	maxShare       = 100
)

// Distribution é o plano completo de pagamentos de uma venda. Ele é montado e
// validado inteiro antes de qualquer transferência.
type Distribution struct {
	TotalFee  uint64
	Creators  []models.Payout
	Remaining uint64
}

// Payouts devolve as transferências na ordem de execução: criadores com taxa
// não nula e depois o restante para o vendedor.
func (d Distribution) Payouts(seller solana.PublicKey) []models.Payout {
	out := make([]models.Payout, 0, len(d.Creators)+1)
	for _, p := range d.Creators {
		if p.Amount > 0 {
			out = append(out, p)
		}
	}
	if d.Remaining > 0 {
		out = append(out, models.Payout{Recipient: seller, Amount: d.Remaining})
	}
	return out
}

// mulDiv calcula floor(a*b/d) sem perder os bits altos do produto.
func mulDiv(a, b, d uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrFeeOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// Distribute divide price entre os criadores declarados em metadata e o vendedor.
//
// total_fee = floor(bps*price/10000); cada criador recebe floor(share*total_fee/100)
// e o vendedor fica com price - Σ taxas. supplied são as contas de pagamento
// informadas pelo chamador, na mesma ordem dos criadores; qualquer divergência
// aborta a distribuição inteira.
func Distribute(price uint64, metadata models.AssetMetadata, supplied []solana.PublicKey) (Distribution, error) {
	if len(metadata.Creators) == 0 {
		return Distribution{Remaining: price}, nil
	}
	if metadata.SellerFeeBasisPoints > maxBasisPoints {
		return Distribution{}, fmt.Errorf("%w: %d bps", ErrInvalidShares, metadata.SellerFeeBasisPoints)
	}
	if len(supplied) != len(metadata.Creators) {
		return Distribution{}, fmt.Errorf("%w: %d contas para %d criadores", ErrCreatorMismatch, len(supplied), len(metadata.Creators))
	}
	totalFee, err := mulDiv(uint64(metadata.SellerFeeBasisPoints), price, maxBasisPoints)
	if err != nil {
		return Distribution{}, err
	}

	d := Distribution{TotalFee: totalFee, Remaining: price, Creators: make([]models.Payout, 0, len(metadata.Creators))}
	var paid uint64
	for i, creator := range metadata.Creators {
		if err := requireSame(ErrCreatorMismatch, supplied[i], creator.Address); err != nil {
			return Distribution{}, err
		}
		if creator.Share > maxShare {
			return Distribution{}, fmt.Errorf("%w: %s com %d%%", ErrInvalidShares, creator.Address, creator.Share)
		}
		fee, err := mulDiv(uint64(creator.Share), totalFee, maxShare)
		if err != nil {
			return Distribution{}, err
		}
		var borrow uint64
		d.Remaining, borrow = bits.Sub64(d.Remaining, fee, 0)
		if borrow != 0 {
			return Distribution{}, ErrFeeUnderflow
		}
		if fee > totalFee-paid {
			return Distribution{}, fmt.Errorf("%w: criadores somam mais que a taxa de %d", ErrFeeUnderflow, totalFee)
		}
		paid += fee
		d.Creators = append(d.Creators, models.Payout{Recipient: creator.Address, Amount: fee, Royalty: true})
	}
	return d, nil
}
