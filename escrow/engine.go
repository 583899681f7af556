package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

const (
	DefaultMinPrice uint64 = 1_000
	DefaultMaxPrice uint64 = 1_000_000_000
)

// DefaultProgramID é a identidade de programa usada nas derivações quando a
// configuração não informa outra.
var DefaultProgramID = solana.MustPublicKeyFromBase58("25vAKs29xER5CYkxV58MVnN1FZmgj235zA7kHxd6RFk8")

var errNilStore = errors.New("escrow engine: armazenamento não configurado")

// Config reúne as constantes explícitas da liquidação.
type Config struct {
	ProgramID         solana.PublicKey
	MetadataProgramID solana.PublicKey
	MinPrice          uint64 // inclusivo
	MaxPrice          uint64 // exclusivo
}

// DefaultConfig devolve a configuração padrão do programa.
func DefaultConfig() Config {
	return Config{
		ProgramID:         DefaultProgramID,
		MetadataProgramID: DefaultMetadataProgramID,
		MinPrice:          DefaultMinPrice,
		MaxPrice:          DefaultMaxPrice,
	}
}

func (c Config) validate() error {
	if c.ProgramID.IsZero() {
		return fmt.Errorf("escrow engine: program id vazio")
	}
	if c.MetadataProgramID.IsZero() {
		return fmt.Errorf("escrow engine: metadata program id vazio")
	}
	if c.MinPrice >= c.MaxPrice {
		return fmt.Errorf("escrow engine: intervalo de preço inválido [%d, %d)", c.MinPrice, c.MaxPrice)
	}
	return nil
}

// Observer recebe o resultado de cada operação; outcome é "ok" ou o Kind da falha.
type Observer interface {
	Observe(op, outcome string, settlement *models.Settlement)
}

type noopObserver struct{}

func (noopObserver) Observe(string, string, *models.Settlement) {}

// Engine executa list, buy e cancel sobre um armazenamento externo de contas.
// Cada operação roda inteira numa unidade de trabalho do armazenamento.
type Engine struct {
	store    storage.Store
	cfg      Config
	logger   *slog.Logger
	observer Observer
	nowFn    func() time.Time
}

// NewEngine cria o motor de liquidação.
func NewEngine(store storage.Store, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errNilStore
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:    store,
		cfg:      cfg,
		logger:   slog.Default(),
		observer: noopObserver{},
		nowFn:    time.Now,
	}, nil
}

// SetLogger troca o logger; nil volta ao slog.Default().
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetObserver configura quem recebe os resultados das operações.
func (e *Engine) SetObserver(observer Observer) {
	if observer == nil {
		e.observer = noopObserver{}
		return
	}
	e.observer = observer
}

// SetNowFunc sobrescreve a fonte de tempo dos registros do diário. Usado em testes.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Config devolve a configuração em uso.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) newSettlement(kind models.SettlementKind, record models.EscrowRecord, actor, authority solana.PublicKey) *models.Settlement {
	return &models.Settlement{
		ID:           uuid.NewString(),
		Kind:         kind,
		Escrow:       record.Address,
		Actor:        actor,
		NewAuthority: authority,
		Price:        record.Price,
		CreatedAt:    e.nowFn().UTC(),
	}
}

// run executa fn numa unidade de trabalho e grava a entrada de diário que ela
// produzir. Qualquer erro desfaz a operação inteira.
func (e *Engine) run(ctx context.Context, op string, escrow solana.PublicKey, fn func(storage.Accounts) (*models.Settlement, error)) (*models.Settlement, error) {
	var settlement *models.Settlement
	err := e.store.Atomically(ctx, func(accounts storage.Accounts) error {
		s, err := fn(accounts)
		if err != nil {
			return err
		}
		if err := accounts.RecordSettlement(ctx, *s); err != nil {
			return err
		}
		settlement = s
		return nil
	})
	if err != nil {
		err = fail(op, err)
		kind := KindOf(err)
		if kind == KindUnknown {
			e.logger.ErrorContext(ctx, "falha na liquidação", "op", op, "escrow", escrow, "error", err)
		} else {
			e.logger.WarnContext(ctx, "operação rejeitada", "op", op, "escrow", escrow, "kind", kind, "error", err)
		}
		e.observer.Observe(op, string(kind), nil)
		return nil, err
	}
	e.logger.InfoContext(ctx, "liquidação concluída",
		"op", op,
		"escrow", escrow,
		"settlement_id", settlement.ID,
		"new_authority", settlement.NewAuthority,
		"price", settlement.Price,
	)
	e.observer.Observe(op, "ok", settlement)
	return settlement, nil
}

// reject registra e devolve uma falha detectada antes de abrir a unidade de trabalho.
func (e *Engine) reject(ctx context.Context, op string, escrow solana.PublicKey, err error) error {
	err = fail(op, err)
	e.logger.WarnContext(ctx, "operação rejeitada", "op", op, "escrow", escrow, "kind", KindOf(err), "error", err)
	e.observer.Observe(op, string(KindOf(err)), nil)
	return err
}

// loadListed carrega um registro que precisa estar ativo.
func loadListed(ctx context.Context, accounts storage.Accounts, address solana.PublicKey) (models.EscrowRecord, error) {
	record, found, err := accounts.GetEscrow(ctx, address)
	if err != nil {
		return models.EscrowRecord{}, err
	}
	if !found {
		return models.EscrowRecord{}, fmt.Errorf("%w: %s", ErrNotListed, address)
	}
	if !record.Initialized {
		return models.EscrowRecord{}, fmt.Errorf("%w: %s", ErrAlreadySettled, address)
	}
	return record, nil
}

// Escrow lê um registro sem alterá-lo.
func (e *Engine) Escrow(ctx context.Context, address solana.PublicKey) (models.EscrowRecord, bool, error) {
	var (
		record models.EscrowRecord
		found  bool
	)
	err := e.store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		record, found, err = accounts.GetEscrow(ctx, address)
		return err
	})
	return record, found, err
}
