package blockchain_listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/gagliardetto/solana-go"
)

// Motivos de divergência reportados pelo watcher.
const (
	DriftMissing   = "missing"
	DriftAuthority = "authority"
	DriftMint      = "mint"
)

// AccountFetcher lê contas de token na Solana.
type AccountFetcher interface {
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, bool, error)
}

// DriftRecorder contabiliza divergências encontradas.
type DriftRecorder interface {
	CustodyDrift(reason string)
}

// Drift é uma divergência entre um escrow ativo e sua conta de custódia na rede.
type Drift struct {
	Escrow   solana.PublicKey
	Custody  solana.PublicKey
	Reason   string
	Expected solana.PublicKey
	Actual   solana.PublicKey
}

// CustodyWatcher confere periodicamente se as contas de custódia dos escrows
// ativos continuam, na Solana, sob a autoridade derivada de cada registro.
type CustodyWatcher struct {
	Store     storage.Store
	Chain     AccountFetcher
	ProgramID solana.PublicKey
	Interval  time.Duration
	Recorder  DriftRecorder // opcional
	logger    *slog.Logger
}

// NewCustodyWatcher cria uma nova instância do watcher.
func NewCustodyWatcher(store storage.Store, chain AccountFetcher, programID solana.PublicKey, interval time.Duration, logger *slog.Logger) *CustodyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustodyWatcher{
		Store:     store,
		Chain:     chain,
		ProgramID: programID,
		Interval:  interval,
		logger:    logger,
	}
}

// StartWatching roda uma verificação a cada Interval até ctx ser cancelado.
func (w *CustodyWatcher) StartWatching(ctx context.Context) {
	w.logger.Info("watcher de custódia iniciado", "interval", w.Interval)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("falha na verificação de custódia", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("watcher de custódia encerrado")
			return
		case <-ticker.C:
		}
	}
}

// Check compara cada escrow ativo com sua conta de custódia na rede e devolve
// as divergências encontradas. Falhas de leitura de uma conta não interrompem
// a verificação das demais.
func (w *CustodyWatcher) Check(ctx context.Context) ([]Drift, error) {
	var records []models.EscrowRecord
	err := w.Store.View(ctx, func(accounts storage.Accounts) error {
		var err error
		records, err = accounts.ActiveEscrows(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, record := range records {
		if ctx.Err() != nil {
			return drifts, ctx.Err()
		}
		drift, ok, err := w.inspect(ctx, record)
		if err != nil {
			w.logger.Warn("falha ao ler custódia na Solana", "escrow", record.Address, "custody", record.CustodyAccount, "error", err)
			continue
		}
		if !ok {
			continue
		}
		drifts = append(drifts, drift)
		w.logger.Warn("divergência de custódia",
			"escrow", drift.Escrow,
			"custody", drift.Custody,
			"reason", drift.Reason,
			"expected", drift.Expected,
			"actual", drift.Actual,
		)
		if w.Recorder != nil {
			w.Recorder.CustodyDrift(drift.Reason)
		}
	}
	w.logger.Debug("verificação de custódia concluída", "active", len(records), "drifts", len(drifts))
	return drifts, nil
}

func (w *CustodyWatcher) inspect(ctx context.Context, record models.EscrowRecord) (Drift, bool, error) {
	expected, err := escrow.EscrowAuthority(record.Address, w.ProgramID)
	if err != nil {
		return Drift{}, false, err
	}
	drift := Drift{Escrow: record.Address, Custody: record.CustodyAccount, Expected: expected}

	account, found, err := w.Chain.GetTokenAccount(ctx, record.CustodyAccount)
	if err != nil {
		return Drift{}, false, err
	}
	switch {
	case !found:
		drift.Reason = DriftMissing
	case !account.Mint.Equals(record.AssetID):
		drift.Reason = DriftMint
		drift.Expected = record.AssetID
		drift.Actual = account.Mint
	case !account.Authority.Equals(expected):
		drift.Reason = DriftAuthority
		drift.Actual = account.Authority
	default:
		return Drift{}, false, nil
	}
	return drift, true, nil
}
