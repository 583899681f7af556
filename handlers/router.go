package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/ferreirogomes/custodia/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AdminTokenHeader carrega o token das rotas de alocação.
const AdminTokenHeader = "X-Admin-Token"

// RouterConfig reúne as dependências das rotas HTTP.
type RouterConfig struct {
	Escrows *services.EscrowService
	Custody *services.CustodyService
	Metrics http.Handler // opcional
	Logger  *slog.Logger
	// AdminToken habilita as rotas de escrita de alocação; vazio as desliga.
	AdminToken string
}

// NewRouter monta o roteador chi do serviço.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	escrowHandler := NewEscrowHandler(cfg.Escrows, logger)
	assetHandler := NewAssetHandler(cfg.Custody, logger)
	tokenHandler := NewTokenHandler(cfg.Custody, logger)
	walletHandler := NewWalletHandler(cfg.Custody, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/escrows", func(r chi.Router) {
		r.Get("/", escrowHandler.ListActive)
		r.Post("/list", escrowHandler.List)
		r.Post("/buy", escrowHandler.Buy)
		r.Post("/cancel", escrowHandler.Cancel)
		r.Get("/{address}", escrowHandler.GetEscrow)
		r.Get("/{address}/settlements", escrowHandler.GetSettlements)
		r.Post("/{address}/anchor", escrowHandler.Anchor)
	})

	r.Get("/assets/{mint}", assetHandler.GetAsset)
	r.Get("/token-accounts/{address}", tokenHandler.GetTokenAccount)
	r.Get("/wallets/{address}", walletHandler.GetWallet)

	if cfg.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(requireAdminToken(cfg.AdminToken))
			r.Post("/assets", assetHandler.RegisterAsset)
			r.Post("/token-accounts", tokenHandler.OpenTokenAccount)
			r.Post("/wallets/{address}/deposit", walletHandler.Deposit)
		})
	}
	return r
}

func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "token de administração inválido", Kind: "authorization"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
