package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
)

type memoryState struct {
	escrows     map[solana.PublicKey]models.EscrowRecord
	tokens      map[solana.PublicKey]models.TokenAccount
	balances    map[solana.PublicKey]uint64
	metadata    map[solana.PublicKey]models.AssetMetadata
	settlements []models.Settlement
}

func newMemoryState() *memoryState {
	return &memoryState{
		escrows:  make(map[solana.PublicKey]models.EscrowRecord),
		tokens:   make(map[solana.PublicKey]models.TokenAccount),
		balances: make(map[solana.PublicKey]uint64),
		metadata: make(map[solana.PublicKey]models.AssetMetadata),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.metadata {
		v.Creators = append([]models.Creator(nil), v.Creators...)
		c.metadata[k] = v
	}
	c.settlements = append([]models.Settlement(nil), s.settlements...)
	return c
}

// MemoryStore mantém as contas em memória. Cada unidade de trabalho roda sobre
// uma cópia do estado, que só substitui o original quando fn termina sem erro.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryStore cria um armazenamento vazio em memória.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (m *MemoryStore) Atomically(ctx context.Context, fn func(Accounts) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := m.state.clone()
	if err := fn(&memoryAccounts{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// View lê o estado corrente sem copiá-lo; leituras concorrentes não se bloqueiam.
func (m *MemoryStore) View(ctx context.Context, fn func(Accounts) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryAccounts{state: m.state, readOnly: true})
}

func (m *MemoryStore) Close() error { return nil }

type memoryAccounts struct {
	state    *memoryState
	readOnly bool
}

func (a *memoryAccounts) GetEscrow(_ context.Context, address solana.PublicKey) (models.EscrowRecord, bool, error) {
	rec, ok := a.state.escrows[address]
	if !ok {
		return models.EscrowRecord{Address: address}, false, nil
	}
	return rec, true, nil
}

func (a *memoryAccounts) PutEscrow(_ context.Context, record models.EscrowRecord) error {
	if a.readOnly {
		return ErrReadOnly
	}
	a.state.escrows[record.Address] = record
	return nil
}

func (a *memoryAccounts) ActiveEscrows(_ context.Context) ([]models.EscrowRecord, error) {
	var out []models.EscrowRecord
	for _, rec := range a.state.escrows {
		if rec.Initialized {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out, nil
}

func (a *memoryAccounts) OpenTokenAccount(_ context.Context, account models.TokenAccount) error {
	if a.readOnly {
		return ErrReadOnly
	}
	if _, ok := a.state.tokens[account.Address]; ok {
		return ErrAccountExists
	}
	a.state.tokens[account.Address] = account
	return nil
}

func (a *memoryAccounts) GetTokenAccount(_ context.Context, address solana.PublicKey) (models.TokenAccount, bool, error) {
	acc, ok := a.state.tokens[address]
	return acc, ok, nil
}

func (a *memoryAccounts) SetTokenAuthority(_ context.Context, address, authority solana.PublicKey) error {
	if a.readOnly {
		return ErrReadOnly
	}
	acc, ok := a.state.tokens[address]
	if !ok {
		return ErrNotFound
	}
	acc.Authority = authority
	a.state.tokens[address] = acc
	return nil
}

func (a *memoryAccounts) Balance(_ context.Context, owner solana.PublicKey) (uint64, error) {
	return a.state.balances[owner], nil
}

func (a *memoryAccounts) Deposit(_ context.Context, owner solana.PublicKey, amount uint64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	next, err := credit(a.state.balances[owner], amount)
	if err != nil {
		return err
	}
	a.state.balances[owner] = next
	return nil
}

func (a *memoryAccounts) Transfer(_ context.Context, from, to solana.PublicKey, amount uint64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	if a.state.balances[from] < amount {
		return ErrInsufficientFunds
	}
	a.state.balances[from] -= amount
	next, err := credit(a.state.balances[to], amount)
	if err != nil {
		return err
	}
	a.state.balances[to] = next
	return nil
}

func (a *memoryAccounts) PutMetadata(_ context.Context, metadata models.AssetMetadata) error {
	if a.readOnly {
		return ErrReadOnly
	}
	metadata.Creators = append([]models.Creator(nil), metadata.Creators...)
	a.state.metadata[metadata.Address] = metadata
	return nil
}

func (a *memoryAccounts) GetMetadata(_ context.Context, address solana.PublicKey) (models.AssetMetadata, bool, error) {
	md, ok := a.state.metadata[address]
	if !ok {
		return models.AssetMetadata{}, false, nil
	}
	md.Creators = append([]models.Creator(nil), md.Creators...)
	return md, true, nil
}

func (a *memoryAccounts) RecordSettlement(_ context.Context, settlement models.Settlement) error {
	if a.readOnly {
		return ErrReadOnly
	}
	a.state.settlements = append(a.state.settlements, settlement)
	return nil
}

func (a *memoryAccounts) Settlements(_ context.Context, escrow solana.PublicKey) ([]models.Settlement, error) {
	var out []models.Settlement
	for _, s := range a.state.settlements {
		if s.Escrow.Equals(escrow) {
			out = append(out, s)
		}
	}
	return out, nil
}
