package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ferreirogomes/custodia/escrow"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"
)

// Variáveis de ambiente que sobrescrevem o arquivo.
const (
	EnvDatabaseURL  = "CUSTODIA_DATABASE_URL"
	EnvSolanaRPCURL = "CUSTODIA_SOLANA_RPC_URL"
	EnvFeePayerKey  = "CUSTODIA_FEE_PAYER_KEY"
	EnvListenAddr   = "CUSTODIA_LISTEN_ADDR"
)

// Config é a configuração completa do serviço.
type Config struct {
	ListenAddress string        `toml:"ListenAddress"`
	Log           LogConfig     `toml:"Log"`
	Store         StoreConfig   `toml:"Store"`
	Escrow        EscrowConfig  `toml:"Escrow"`
	Solana        SolanaConfig  `toml:"Solana"`
	Watcher       WatcherConfig `toml:"Watcher"`
	Admin         AdminConfig   `toml:"Admin"`
}

type LogConfig struct {
	Level  string `toml:"Level"`  // debug, info, warn, error
	Format string `toml:"Format"` // json ou text
}

type StoreConfig struct {
	Driver      string `toml:"Driver"` // postgres, bolt ou memory
	DatabaseURL string `toml:"DatabaseURL"`
	BoltPath    string `toml:"BoltPath"`
}

type EscrowConfig struct {
	ProgramID         string `toml:"ProgramID"`
	MetadataProgramID string `toml:"MetadataProgramID"`
	MinPrice          uint64 `toml:"MinPrice"`
	MaxPrice          uint64 `toml:"MaxPrice"`
}

type SolanaConfig struct {
	RPCURL      string `toml:"RPCURL"`
	FeePayerKey string `toml:"FeePayerKey"` // base58; só é necessária para ancorar transações
}

type WatcherConfig struct {
	Interval duration `toml:"Interval"`
}

// AdminConfig controla as rotas de alocação de contas (metadados, contas de
// custódia e depósitos), que ficam desligadas por padrão.
type AdminConfig struct {
	Enabled bool   `toml:"Enabled"`
	Token   string `toml:"Token"`
}

// duration aceita valores como "30s" no TOML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default devolve a configuração padrão.
func Default() *Config {
	defaults := escrow.DefaultConfig()
	return &Config{
		ListenAddress: ":8080",
		Log:           LogConfig{Level: "info", Format: "json"},
		Store:         StoreConfig{Driver: "memory", BoltPath: "custodia.db"},
		Escrow: EscrowConfig{
			ProgramID:         defaults.ProgramID.String(),
			MetadataProgramID: defaults.MetadataProgramID.String(),
			MinPrice:          defaults.MinPrice,
			MaxPrice:          defaults.MaxPrice,
		},
		Watcher: WatcherConfig{Interval: duration{30 * time.Second}},
	}
}

// Load lê o arquivo TOML em path (se houver), aplica as variáveis de ambiente
// e valida o resultado. path vazio usa apenas padrões e ambiente.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("falha ao ler configuração %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("chaves desconhecidas na configuração: %s", strings.Join(keys, ", "))
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := getenv(EnvSolanaRPCURL); v != "" {
		c.Solana.RPCURL = v
	}
	if v := getenv(EnvFeePayerKey); v != "" {
		c.Solana.FeePayerKey = v
	}
	if v := getenv(EnvListenAddr); v != "" {
		c.ListenAddress = v
	}
}

// Validate confere a coerência da configuração.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("Store.DatabaseURL é obrigatório com o driver postgres"))
		}
	case "bolt":
		if c.Store.BoltPath == "" {
			errs = append(errs, errors.New("Store.BoltPath é obrigatório com o driver bolt"))
		}
	default:
		errs = append(errs, fmt.Errorf("Store.Driver desconhecido: %q", c.Store.Driver))
	}
	if _, err := c.EscrowSettings(); err != nil {
		errs = append(errs, err)
	}
	if c.Solana.FeePayerKey != "" {
		if key, err := solana.PrivateKeyFromBase58(c.Solana.FeePayerKey); err != nil {
			errs = append(errs, fmt.Errorf("Solana.FeePayerKey inválida: %w", err))
		} else if len(key) != 64 {
			errs = append(errs, fmt.Errorf("Solana.FeePayerKey deve ter 64 bytes, tem %d", len(key)))
		}
	}
	if c.Watcher.Interval.Duration <= 0 {
		errs = append(errs, errors.New("Watcher.Interval deve ser positivo"))
	}
	if c.Admin.Enabled && c.Admin.Token == "" {
		errs = append(errs, errors.New("Admin.Token é obrigatório com Admin.Enabled"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EscrowSettings converte a seção Escrow para a configuração do motor.
func (c *Config) EscrowSettings() (escrow.Config, error) {
	program, err := solana.PublicKeyFromBase58(c.Escrow.ProgramID)
	if err != nil {
		return escrow.Config{}, fmt.Errorf("Escrow.ProgramID inválido: %w", err)
	}
	metadataProgram, err := solana.PublicKeyFromBase58(c.Escrow.MetadataProgramID)
	if err != nil {
		return escrow.Config{}, fmt.Errorf("Escrow.MetadataProgramID inválido: %w", err)
	}
	if c.Escrow.MinPrice >= c.Escrow.MaxPrice {
		return escrow.Config{}, fmt.Errorf("intervalo de preço inválido [%d, %d)", c.Escrow.MinPrice, c.Escrow.MaxPrice)
	}
	return escrow.Config{
		ProgramID:         program,
		MetadataProgramID: metadataProgram,
		MinPrice:          c.Escrow.MinPrice,
		MaxPrice:          c.Escrow.MaxPrice,
	}, nil
}

// LogLevel interpreta Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("Log.Level inválido %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// NewLogger monta o logger do serviço conforme a seção Log.
func (c *Config) NewLogger() *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
