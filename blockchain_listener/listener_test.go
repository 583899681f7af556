package blockchain_listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher é uma implementação mock de AccountFetcher.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) GetTokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, bool, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(models.TokenAccount), args.Bool(1), args.Error(2)
}

type countingRecorder struct {
	reasons []string
}

func (c *countingRecorder) CustodyDrift(reason string) {
	c.reasons = append(c.reasons, reason)
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// seedEscrows grava registros ativos direto no armazenamento e devolve-os.
func seedEscrows(t *testing.T, store storage.Store, n int) []models.EscrowRecord {
	t.Helper()
	records := make([]models.EscrowRecord, n)
	err := store.Atomically(context.Background(), func(accounts storage.Accounts) error {
		for i := range records {
			records[i] = models.EscrowRecord{
				Address:        newKey(),
				Initialized:    true,
				Seller:         newKey(),
				CustodyAccount: newKey(),
				AssetID:        newKey(),
				Price:          5_000,
			}
			if err := accounts.PutEscrow(context.Background(), records[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return records
}

func authorityOf(t *testing.T, record models.EscrowRecord) solana.PublicKey {
	t.Helper()
	authority, err := escrow.EscrowAuthority(record.Address, escrow.DefaultProgramID)
	require.NoError(t, err)
	return authority
}

func TestCheckReportsDrift(t *testing.T) {
	store := storage.NewMemoryStore()
	records := seedEscrows(t, store, 4)
	healthy, moved, missing, wrongMint := records[0], records[1], records[2], records[3]
	thief := newKey()

	chain := new(MockFetcher)
	chain.On("GetTokenAccount", mock.Anything, healthy.CustodyAccount).
		Return(models.TokenAccount{Mint: healthy.AssetID, Authority: authorityOf(t, healthy)}, true, nil)
	chain.On("GetTokenAccount", mock.Anything, moved.CustodyAccount).
		Return(models.TokenAccount{Mint: moved.AssetID, Authority: thief}, true, nil)
	chain.On("GetTokenAccount", mock.Anything, missing.CustodyAccount).
		Return(models.TokenAccount{}, false, nil)
	chain.On("GetTokenAccount", mock.Anything, wrongMint.CustodyAccount).
		Return(models.TokenAccount{Mint: newKey(), Authority: authorityOf(t, wrongMint)}, true, nil)

	recorder := &countingRecorder{}
	w := NewCustodyWatcher(store, chain, escrow.DefaultProgramID, time.Minute, nil)
	w.Recorder = recorder

	drifts, err := w.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 3)

	byEscrow := map[solana.PublicKey]Drift{}
	for _, d := range drifts {
		byEscrow[d.Escrow] = d
	}
	assert.Equal(t, DriftAuthority, byEscrow[moved.Address].Reason)
	assert.Equal(t, thief, byEscrow[moved.Address].Actual)
	assert.Equal(t, DriftMissing, byEscrow[missing.Address].Reason)
	assert.Equal(t, DriftMint, byEscrow[wrongMint.Address].Reason)
	assert.NotContains(t, byEscrow, healthy.Address)
	assert.ElementsMatch(t, []string{DriftAuthority, DriftMissing, DriftMint}, recorder.reasons)
	chain.AssertExpectations(t)
}

func TestCheckSkipsFetchErrors(t *testing.T) {
	store := storage.NewMemoryStore()
	records := seedEscrows(t, store, 2)

	chain := new(MockFetcher)
	chain.On("GetTokenAccount", mock.Anything, records[0].CustodyAccount).
		Return(models.TokenAccount{}, false, errors.New("rpc indisponível"))
	chain.On("GetTokenAccount", mock.Anything, records[1].CustodyAccount).
		Return(models.TokenAccount{}, false, nil)

	w := NewCustodyWatcher(store, chain, escrow.DefaultProgramID, time.Minute, nil)
	drifts, err := w.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, records[1].Address, drifts[0].Escrow)
}

func TestCheckIgnoresSettledEscrows(t *testing.T) {
	store := storage.NewMemoryStore()
	records := seedEscrows(t, store, 1)
	settled := records[0]
	settled.Initialized = false
	require.NoError(t, store.Atomically(context.Background(), func(accounts storage.Accounts) error {
		return accounts.PutEscrow(context.Background(), settled)
	}))

	chain := new(MockFetcher)
	w := NewCustodyWatcher(store, chain, escrow.DefaultProgramID, time.Minute, nil)
	drifts, err := w.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drifts)
	chain.AssertNotCalled(t, "GetTokenAccount", mock.Anything, mock.Anything)
}

func TestStartWatchingStopsOnCancel(t *testing.T) {
	store := storage.NewMemoryStore()
	w := NewCustodyWatcher(store, new(MockFetcher), escrow.DefaultProgramID, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.StartWatching(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher não encerrou após o cancelamento")
	}
}
