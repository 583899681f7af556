package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

var errAbort = errors.New("abortar")

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// backends devolve um construtor por backend disponível no ambiente de teste.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"bolt": func(t *testing.T) Store {
			store, err := NewBoltStore(filepath.Join(t.TempDir(), "custodia.db"), &bolt.Options{Timeout: time.Second})
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
	if dsn := os.Getenv("CUSTODIA_TEST_DATABASE_URL"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			store, err := NewDB(dsn, nil)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		}
	}
	return out
}

func forEachBackend(t *testing.T, test func(t *testing.T, store Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			test(t, open(t))
		})
	}
}

func atomically(t *testing.T, store Store, fn func(Accounts) error) {
	t.Helper()
	require.NoError(t, store.Atomically(context.Background(), fn))
}

func TestEscrowRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		active := models.EscrowRecord{
			Address:        newKey(),
			Initialized:    true,
			Seller:         newKey(),
			CustodyAccount: newKey(),
			AssetID:        newKey(),
			Price:          12_345,
			Index:          7,
		}
		settled := active
		settled.Address = newKey()
		settled.Initialized = false
		unknown := newKey()

		atomically(t, store, func(a Accounts) error {
			if err := a.PutEscrow(ctx, active); err != nil {
				return err
			}
			return a.PutEscrow(ctx, settled)
		})

		atomically(t, store, func(a Accounts) error {
			got, found, err := a.GetEscrow(ctx, active.Address)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, active, got)

			got, found, err = a.GetEscrow(ctx, unknown)
			require.NoError(t, err)
			assert.False(t, found)
			assert.True(t, got.IsZero())
			assert.Equal(t, unknown, got.Address)

			records, err := a.ActiveEscrows(ctx)
			require.NoError(t, err)
			assert.Contains(t, records, active)
			assert.NotContains(t, records, settled)
			return nil
		})
	})
}

func TestTokenAccounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		account := models.TokenAccount{Address: newKey(), Mint: newKey(), Authority: newKey(), Amount: 1}
		next := newKey()

		atomically(t, store, func(a Accounts) error { return a.OpenTokenAccount(ctx, account) })

		err := store.Atomically(ctx, func(a Accounts) error { return a.OpenTokenAccount(ctx, account) })
		assert.ErrorIs(t, err, ErrAccountExists)

		err = store.Atomically(ctx, func(a Accounts) error { return a.SetTokenAuthority(ctx, newKey(), next) })
		assert.ErrorIs(t, err, ErrNotFound)

		atomically(t, store, func(a Accounts) error { return a.SetTokenAuthority(ctx, account.Address, next) })
		atomically(t, store, func(a Accounts) error {
			got, found, err := a.GetTokenAccount(ctx, account.Address)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, next, got.Authority)
			assert.Equal(t, account.Mint, got.Mint)
			return nil
		})
	})
}

func TestBalances(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		alice, bob := newKey(), newKey()

		atomically(t, store, func(a Accounts) error { return a.Deposit(ctx, alice, 1_000) })
		atomically(t, store, func(a Accounts) error { return a.Transfer(ctx, alice, bob, 400) })

		err := store.Atomically(ctx, func(a Accounts) error { return a.Transfer(ctx, bob, alice, 401) })
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		err = store.Atomically(ctx, func(a Accounts) error { return a.Deposit(ctx, bob, maxBalance) })
		assert.ErrorIs(t, err, ErrBalanceOverflow)

		atomically(t, store, func(a Accounts) error {
			balance, err := a.Balance(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(600), balance)
			balance, err = a.Balance(ctx, bob)
			require.NoError(t, err)
			assert.Equal(t, uint64(400), balance)
			balance, err = a.Balance(ctx, newKey())
			require.NoError(t, err)
			assert.Zero(t, balance)
			return nil
		})
	})
}

func TestFailedUnitOfWorkRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		payer, payee := newKey(), newKey()
		custody := models.TokenAccount{Address: newKey(), Mint: newKey(), Authority: payer, Amount: 1}
		record := models.EscrowRecord{Address: newKey(), Initialized: true, Seller: payer, CustodyAccount: custody.Address, AssetID: custody.Mint, Price: 5_000}

		atomically(t, store, func(a Accounts) error {
			if err := a.Deposit(ctx, payer, 5_000); err != nil {
				return err
			}
			if err := a.OpenTokenAccount(ctx, custody); err != nil {
				return err
			}
			return a.PutEscrow(ctx, record)
		})

		err := store.Atomically(ctx, func(a Accounts) error {
			if err := a.Transfer(ctx, payer, payee, 5_000); err != nil {
				return err
			}
			if err := a.SetTokenAuthority(ctx, custody.Address, payee); err != nil {
				return err
			}
			settled := record
			settled.Initialized = false
			if err := a.PutEscrow(ctx, settled); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		atomically(t, store, func(a Accounts) error {
			balance, err := a.Balance(ctx, payer)
			require.NoError(t, err)
			assert.Equal(t, uint64(5_000), balance)
			balance, err = a.Balance(ctx, payee)
			require.NoError(t, err)
			assert.Zero(t, balance)

			acc, _, err := a.GetTokenAccount(ctx, custody.Address)
			require.NoError(t, err)
			assert.Equal(t, payer, acc.Authority)

			got, _, err := a.GetEscrow(ctx, record.Address)
			require.NoError(t, err)
			assert.True(t, got.Initialized)
			return nil
		})
	})
}

func TestMetadataAndSettlements(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		metadata := models.AssetMetadata{
			Address:              newKey(),
			Mint:                 newKey(),
			SellerFeeBasisPoints: 250,
			Creators:             []models.Creator{{Address: newKey(), Share: 100}},
		}
		escrowAddr := newKey()
		createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		first := models.Settlement{ID: uuid.NewString(), Kind: models.SettlementList, Escrow: escrowAddr, Actor: newKey(), NewAuthority: newKey(), Price: 9_000, CreatedAt: createdAt}
		second := models.Settlement{ID: uuid.NewString(), Kind: models.SettlementBuy, Escrow: escrowAddr, Actor: newKey(), NewAuthority: newKey(), Price: 9_000, CreatedAt: createdAt.Add(time.Minute),
			Payouts: []models.Payout{{Recipient: metadata.Creators[0].Address, Amount: 225, Royalty: true}}}
		other := models.Settlement{ID: uuid.NewString(), Kind: models.SettlementList, Escrow: newKey(), Actor: newKey(), NewAuthority: newKey(), Price: 1_000, CreatedAt: createdAt}

		atomically(t, store, func(a Accounts) error {
			if err := a.PutMetadata(ctx, metadata); err != nil {
				return err
			}
			for _, s := range []models.Settlement{first, other, second} {
				if err := a.RecordSettlement(ctx, s); err != nil {
					return err
				}
			}
			return nil
		})

		atomically(t, store, func(a Accounts) error {
			got, found, err := a.GetMetadata(ctx, metadata.Address)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, metadata, got)

			_, found, err = a.GetMetadata(ctx, newKey())
			require.NoError(t, err)
			assert.False(t, found)

			journal, err := a.Settlements(ctx, escrowAddr)
			require.NoError(t, err)
			require.Len(t, journal, 2)
			assert.Equal(t, first.ID, journal[0].ID)
			assert.Equal(t, second.ID, journal[1].ID)
			assert.Equal(t, uint64(225), journal[1].RoyaltyTotal())
			assert.True(t, createdAt.Equal(journal[0].CreatedAt))
			return nil
		})
	})
}

func TestViewReadsCommittedStateAndRejectsWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		owner := newKey()
		record := models.EscrowRecord{Address: newKey(), Initialized: true, Seller: owner, CustodyAccount: newKey(), AssetID: newKey(), Price: 7_000}

		atomically(t, store, func(a Accounts) error {
			if err := a.Deposit(ctx, owner, 300); err != nil {
				return err
			}
			return a.PutEscrow(ctx, record)
		})

		err := store.View(ctx, func(a Accounts) error {
			got, found, err := a.GetEscrow(ctx, record.Address)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, record, got)

			balance, err := a.Balance(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, uint64(300), balance)
			return nil
		})
		require.NoError(t, err)

		err = store.View(ctx, func(a Accounts) error { return a.Deposit(ctx, owner, 1) })
		assert.ErrorIs(t, err, ErrReadOnly)
		err = store.View(ctx, func(a Accounts) error {
			settled := record
			settled.Initialized = false
			return a.PutEscrow(ctx, settled)
		})
		assert.ErrorIs(t, err, ErrReadOnly)

		require.NoError(t, store.View(ctx, func(a Accounts) error {
			balance, err := a.Balance(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, uint64(300), balance)

			got, _, err := a.GetEscrow(ctx, record.Address)
			require.NoError(t, err)
			assert.True(t, got.Initialized)
			return nil
		}))
	})
}

func TestMemoryViewDoesNotBlockConcurrentReaders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	inside := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = store.View(ctx, func(Accounts) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	done := make(chan error, 1)
	go func() {
		done <- store.View(ctx, func(a Accounts) error {
			_, err := a.ActiveEscrows(ctx)
			return err
		})
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("leitura concorrente ficou bloqueada")
	}
	close(release)
}

func TestMemoryStoreHonorsCanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Atomically(ctx, func(Accounts) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	err = store.View(ctx, func(Accounts) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
