package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferreirogomes/custodia/blockchain_listener"
	"github.com/ferreirogomes/custodia/config"
	"github.com/ferreirogomes/custodia/escrow"
	"github.com/ferreirogomes/custodia/handlers"
	"github.com/ferreirogomes/custodia/metrics"
	"github.com/ferreirogomes/custodia/services"
	"github.com/ferreirogomes/custodia/storage"

	"github.com/spf13/pflag"
	bolt "go.etcd.io/bbolt"
)

func main() {
	configPath := pflag.String("config", "", "arquivo de configuração TOML")
	listen := pflag.String("listen", "", "endereço HTTP (sobrescreve ListenAddress)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuração inválida: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddress = *listen
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("serviço encerrado com erro", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return storage.NewDB(cfg.Store.DatabaseURL, logger)
	case "bolt":
		return storage.NewBoltStore(cfg.Store.BoltPath, &bolt.Options{Timeout: 5 * time.Second})
	case "memory":
		logger.Warn("usando armazenamento em memória; nada será persistido")
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("driver de armazenamento desconhecido: %q", cfg.Store.Driver)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("falha ao abrir armazenamento: %w", err)
	}
	defer store.Close()

	settings, err := cfg.EscrowSettings()
	if err != nil {
		return err
	}
	engine, err := escrow.NewEngine(store, settings)
	if err != nil {
		return err
	}
	recorder := metrics.NewRecorder("custodia")
	engine.SetLogger(logger.With("component", "escrow"))
	engine.SetObserver(recorder)

	var chain services.ChainClient
	if cfg.Solana.RPCURL != "" {
		solanaService, err := services.NewSolanaIntegrationService(cfg.Solana.RPCURL, cfg.Solana.FeePayerKey, logger.With("component", "solana"))
		if err != nil {
			return fmt.Errorf("falha ao inicializar serviço Solana: %w", err)
		}
		chain = solanaService

		watcher := blockchain_listener.NewCustodyWatcher(store, solanaService, settings.ProgramID, cfg.Watcher.Interval.Duration, logger.With("component", "watcher"))
		watcher.Recorder = recorder
		go watcher.StartWatching(ctx)
	} else {
		logger.Info("Solana RPC não configurado; ancoragem e watcher desligados")
	}

	var adminToken string
	if cfg.Admin.Enabled {
		adminToken = cfg.Admin.Token
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Escrows:    services.NewEscrowService(engine, store, chain, logger),
		Custody:    services.NewCustodyService(store, settings),
		Metrics:    recorder.Handler(),
		Logger:     logger,
		AdminToken: adminToken,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("servidor iniciado", "addr", cfg.ListenAddress, "store", cfg.Store.Driver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("encerrando servidor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
