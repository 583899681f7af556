package escrow_test

import (
	"math/rand"
	"testing"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func creatorsWithShares(shares ...uint8) ([]models.Creator, []solana.PublicKey) {
	creators := make([]models.Creator, len(shares))
	keys := make([]solana.PublicKey, len(shares))
	for i, s := range shares {
		keys[i] = solana.NewWallet().PublicKey()
		creators[i] = models.Creator{Address: keys[i], Share: s}
	}
	return creators, keys
}

func TestDistributeScenario(t *testing.T) {
	creators, keys := creatorsWithShares(60, 40)
	md := models.AssetMetadata{SellerFeeBasisPoints: 500, Creators: creators}

	d, err := escrow.Distribute(10_000_000, md, keys)
	require.NoError(t, err)

	assert.Equal(t, uint64(500_000), d.TotalFee)
	require.Len(t, d.Creators, 2)
	assert.Equal(t, uint64(300_000), d.Creators[0].Amount)
	assert.Equal(t, uint64(200_000), d.Creators[1].Amount)
	assert.Equal(t, uint64(9_500_000), d.Remaining)
}

func TestDistributeConservesValue(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	shareSets := [][]uint8{{100}, {50, 50}, {33, 33, 34}, {1, 99}, {10, 20, 30, 40}, {0, 100}}
	for i := 0; i < 500; i++ {
		shares := shareSets[i%len(shareSets)]
		creators, keys := creatorsWithShares(shares...)
		price := escrow.DefaultMinPrice + uint64(rng.Int63n(int64(escrow.DefaultMaxPrice-escrow.DefaultMinPrice)))
		bps := uint16(rng.Intn(10_001))

		d, err := escrow.Distribute(price, models.AssetMetadata{SellerFeeBasisPoints: bps, Creators: creators}, keys)
		require.NoError(t, err)

		var paid uint64
		for _, p := range d.Creators {
			paid += p.Amount
		}
		assert.Equal(t, price, paid+d.Remaining, "price %d bps %d shares %v", price, bps, shares)
		assert.Equal(t, uint64(bps)*price/10_000, d.TotalFee)
		assert.LessOrEqual(t, paid, d.TotalFee)
	}
}

func TestDistributeWithoutCreators(t *testing.T) {
	d, err := escrow.Distribute(12_345, models.AssetMetadata{SellerFeeBasisPoints: 900}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_345), d.Remaining)
	assert.Zero(t, d.TotalFee)
	assert.Empty(t, d.Creators)
}

func TestDistributeRejectsBadInput(t *testing.T) {
	creators, keys := creatorsWithShares(60, 40)

	_, err := escrow.Distribute(1_000_000, models.AssetMetadata{SellerFeeBasisPoints: 10_001, Creators: creators}, keys)
	assert.ErrorIs(t, err, escrow.ErrInvalidShares)

	over, overKeys := creatorsWithShares(101)
	_, err = escrow.Distribute(1_000_000, models.AssetMetadata{SellerFeeBasisPoints: 500, Creators: over}, overKeys)
	assert.ErrorIs(t, err, escrow.ErrInvalidShares)

	tooMuch, tooMuchKeys := creatorsWithShares(80, 80)
	_, err = escrow.Distribute(1_000_000, models.AssetMetadata{SellerFeeBasisPoints: 10_000, Creators: tooMuch}, tooMuchKeys)
	assert.ErrorIs(t, err, escrow.ErrFeeUnderflow)

	swapped := []solana.PublicKey{keys[1], keys[0]}
	_, err = escrow.Distribute(1_000_000, models.AssetMetadata{SellerFeeBasisPoints: 500, Creators: creators}, swapped)
	assert.ErrorIs(t, err, escrow.ErrCreatorMismatch)
}

func TestDistributeLargePriceDoesNotOverflow(t *testing.T) {
	creators, keys := creatorsWithShares(100)
	price := ^uint64(0)

	d, err := escrow.Distribute(price, models.AssetMetadata{SellerFeeBasisPoints: 10_000, Creators: creators}, keys)
	require.NoError(t, err)
	assert.Equal(t, price, d.TotalFee)
	assert.Zero(t, d.Remaining)
}

func TestDistributionPayoutsSkipZero(t *testing.T) {
	creators, keys := creatorsWithShares(0, 100)
	seller := solana.NewWallet().PublicKey()

	d, err := escrow.Distribute(1_000, models.AssetMetadata{SellerFeeBasisPoints: 10_000, Creators: creators}, keys)
	require.NoError(t, err)

	payouts := d.Payouts(seller)
	require.Len(t, payouts, 1)
	assert.Equal(t, keys[1], payouts[0].Recipient)
	assert.True(t, payouts[0].Royalty)
}
