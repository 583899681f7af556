package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEscrows     = []byte("escrows")
	bucketTokens      = []byte("token_accounts")
	bucketBalances    = []byte("balances")
	bucketMetadata    = []byte("asset_metadata")
	bucketSettlements = []byte("settlements")
)

// BoltStore persiste as contas num arquivo BoltDB local, em JSON por bucket.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore abre (ou cria) o arquivo e garante a existência dos buckets.
func NewBoltStore(path string, options *bolt.Options) (*BoltStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir BoltDB %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEscrows, bucketTokens, bucketBalances, bucketMetadata, bucketSettlements} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("falha ao criar buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Atomically(ctx context.Context, fn func(Accounts) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// bbolt desfaz a transação inteira quando a função devolve erro.
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltAccounts{tx: tx})
	})
}

// View roda fn numa transação de leitura do bbolt; escritas devolvem ErrReadOnly.
func (s *BoltStore) View(ctx context.Context, fn func(Accounts) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltAccounts{tx: tx, readOnly: true})
	})
}

// Close libera o arquivo BoltDB.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type boltAccounts struct {
	tx       *bolt.Tx
	readOnly bool
}

func (a *boltAccounts) get(bucket []byte, key solana.PublicKey, v any) (bool, error) {
	raw := a.tx.Bucket(bucket).Get(key[:])
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("falha ao decodificar %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (a *boltAccounts) put(bucket []byte, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return a.tx.Bucket(bucket).Put(key, raw)
}

func (a *boltAccounts) GetEscrow(_ context.Context, address solana.PublicKey) (models.EscrowRecord, bool, error) {
	var rec models.EscrowRecord
	found, err := a.get(bucketEscrows, address, &rec)
	if err != nil || !found {
		return models.EscrowRecord{Address: address}, false, err
	}
	return rec, true, nil
}

func (a *boltAccounts) PutEscrow(_ context.Context, record models.EscrowRecord) error {
	if a.readOnly {
		return ErrReadOnly
	}
	return a.put(bucketEscrows, record.Address[:], record)
}

func (a *boltAccounts) ActiveEscrows(_ context.Context) ([]models.EscrowRecord, error) {
	var out []models.EscrowRecord
	err := a.tx.Bucket(bucketEscrows).ForEach(func(_, raw []byte) error {
		var rec models.EscrowRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if rec.Initialized {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (a *boltAccounts) OpenTokenAccount(_ context.Context, account models.TokenAccount) error {
	if a.readOnly {
		return ErrReadOnly
	}
	if a.tx.Bucket(bucketTokens).Get(account.Address[:]) != nil {
		return ErrAccountExists
	}
	return a.put(bucketTokens, account.Address[:], account)
}

func (a *boltAccounts) GetTokenAccount(_ context.Context, address solana.PublicKey) (models.TokenAccount, bool, error) {
	var acc models.TokenAccount
	found, err := a.get(bucketTokens, address, &acc)
	return acc, found, err
}

func (a *boltAccounts) SetTokenAuthority(ctx context.Context, address, authority solana.PublicKey) error {
	if a.readOnly {
		return ErrReadOnly
	}
	acc, found, err := a.GetTokenAccount(ctx, address)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	acc.Authority = authority
	return a.put(bucketTokens, address[:], acc)
}

func (a *boltAccounts) Balance(_ context.Context, owner solana.PublicKey) (uint64, error) {
	raw := a.tx.Bucket(bucketBalances).Get(owner[:])
	if raw == nil {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (a *boltAccounts) setBalance(owner solana.PublicKey, amount uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	return a.tx.Bucket(bucketBalances).Put(owner[:], buf[:])
}

func (a *boltAccounts) Deposit(ctx context.Context, owner solana.PublicKey, amount uint64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	balance, err := a.Balance(ctx, owner)
	if err != nil {
		return err
	}
	next, err := credit(balance, amount)
	if err != nil {
		return err
	}
	return a.setBalance(owner, next)
}

func (a *boltAccounts) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	balance, err := a.Balance(ctx, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	if err := a.setBalance(from, balance-amount); err != nil {
		return err
	}
	return a.Deposit(ctx, to, amount)
}

func (a *boltAccounts) PutMetadata(_ context.Context, metadata models.AssetMetadata) error {
	if a.readOnly {
		return ErrReadOnly
	}
	return a.put(bucketMetadata, metadata.Address[:], metadata)
}

func (a *boltAccounts) GetMetadata(_ context.Context, address solana.PublicKey) (models.AssetMetadata, bool, error) {
	var md models.AssetMetadata
	found, err := a.get(bucketMetadata, address, &md)
	return md, found, err
}

func (a *boltAccounts) RecordSettlement(_ context.Context, settlement models.Settlement) error {
	if a.readOnly {
		return ErrReadOnly
	}
	bucket := a.tx.Bucket(bucketSettlements)
	seq, err := bucket.NextSequence()
	if err != nil {
		return err
	}
	key := make([]byte, solana.PublicKeyLength+8)
	copy(key, settlement.Escrow[:])
	binary.BigEndian.PutUint64(key[solana.PublicKeyLength:], seq)
	return a.put(bucketSettlements, key, settlement)
}

func (a *boltAccounts) Settlements(_ context.Context, escrow solana.PublicKey) ([]models.Settlement, error) {
	var out []models.Settlement
	c := a.tx.Bucket(bucketSettlements).Cursor()
	prefix := escrow[:]
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var s models.Settlement
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
