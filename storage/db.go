package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferreirogomes/custodia/models"

	"github.com/gagliardetto/solana-go"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB representa a conexão com o banco de dados PostgreSQL.
type DB struct {
	*sqlx.DB
	logger *slog.Logger
}

// NewDB conecta-se ao PostgreSQL e executa as migrações.
func NewDB(dataSourceName string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("falha ao pingar o banco de dados: %w", err)
	}
	logger.Info("conexão com PostgreSQL estabelecida")

	if err := runMigrations(db.DB, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("falha ao executar migrações: %w", err)
	}

	return &DB{DB: db, logger: logger}, nil
}

// runMigrations executa as migrações embutidas usando sql-migrate.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	migrations := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}

	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	if n > 0 {
		logger.Info("migrações aplicadas", "count", n)
	} else {
		logger.Debug("nenhuma migração nova para aplicar")
	}
	return nil
}

// Atomically abre uma transação; qualquer erro devolvido por fn provoca rollback.
func (d *DB) Atomically(ctx context.Context, fn func(Accounts) error) error {
	tx, err := d.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", err)
	}
	if err := fn(&pgAccounts{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error("falha no rollback", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", err)
	}
	return nil
}

// View abre uma transação READ ONLY sem FOR UPDATE; escritas feitas por fn devolvem ErrReadOnly.
func (d *DB) View(ctx context.Context, fn func(Accounts) error) error {
	tx, err := d.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação de leitura: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.logger.Error("falha ao encerrar transação de leitura", "error", rbErr)
		}
	}()
	return fn(&pgAccounts{tx: tx, readOnly: true})
}

type escrowRow struct {
	Address        string `db:"address"`
	Initialized    bool   `db:"initialized"`
	Seller         string `db:"seller"`
	CustodyAccount string `db:"custody_account"`
	AssetID        string `db:"asset_id"`
	Price          int64  `db:"price"`
	Index          int16  `db:"idx"`
}

func (r escrowRow) model() (models.EscrowRecord, error) {
	keys, err := parseKeys(r.Address, r.Seller, r.CustodyAccount, r.AssetID)
	if err != nil {
		return models.EscrowRecord{}, err
	}
	return models.EscrowRecord{
		Address:        keys[0],
		Initialized:    r.Initialized,
		Seller:         keys[1],
		CustodyAccount: keys[2],
		AssetID:        keys[3],
		Price:          uint64(r.Price),
		Index:          uint8(r.Index),
	}, nil
}

type tokenRow struct {
	Address   string `db:"address"`
	Mint      string `db:"mint"`
	Authority string `db:"authority"`
	Amount    int64  `db:"amount"`
}

type metadataRow struct {
	Address              string `db:"address"`
	Mint                 string `db:"mint"`
	SellerFeeBasisPoints int32  `db:"seller_fee_basis_points"`
	Creators             []byte `db:"creators"`
}

type settlementRow struct {
	ID           string    `db:"id"`
	Kind         string    `db:"kind"`
	Escrow       string    `db:"escrow"`
	Actor        string    `db:"actor"`
	NewAuthority string    `db:"new_authority"`
	Price        int64     `db:"price"`
	Payouts      []byte    `db:"payouts"`
	CreatedAt    time.Time `db:"created_at"`
}

func parseKeys(values ...string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(values))
	for i, v := range values {
		k, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return nil, fmt.Errorf("endereço inválido no banco %q: %w", v, err)
		}
		keys[i] = k
	}
	return keys, nil
}

type pgAccounts struct {
	tx       *sqlx.Tx
	readOnly bool
}

// lockClause trava as linhas lidas só quando a unidade de trabalho pode escrever.
func (a *pgAccounts) lockClause() string {
	if a.readOnly {
		return ""
	}
	return " FOR UPDATE"
}

func (a *pgAccounts) GetEscrow(ctx context.Context, address solana.PublicKey) (models.EscrowRecord, bool, error) {
	var row escrowRow
	err := a.tx.GetContext(ctx, &row, `SELECT * FROM escrow_records WHERE address = $1`+a.lockClause(), address.String())
	if errors.Is(err, sql.ErrNoRows) {
		return models.EscrowRecord{Address: address}, false, nil
	}
	if err != nil {
		return models.EscrowRecord{}, false, fmt.Errorf("falha ao buscar escrow: %w", err)
	}
	rec, err := row.model()
	return rec, err == nil, err
}

func (a *pgAccounts) PutEscrow(ctx context.Context, record models.EscrowRecord) error {
	if a.readOnly {
		return ErrReadOnly
	}
	query := `INSERT INTO escrow_records (address, initialized, seller, custody_account, asset_id, price, idx)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET initialized = EXCLUDED.initialized, seller = EXCLUDED.seller,
			custody_account = EXCLUDED.custody_account, asset_id = EXCLUDED.asset_id,
			price = EXCLUDED.price, idx = EXCLUDED.idx`
	_, err := a.tx.ExecContext(ctx, query, record.Address.String(), record.Initialized, record.Seller.String(),
		record.CustodyAccount.String(), record.AssetID.String(), int64(record.Price), int16(record.Index))
	if err != nil {
		return fmt.Errorf("falha ao salvar escrow: %w", err)
	}
	return nil
}

func (a *pgAccounts) ActiveEscrows(ctx context.Context) ([]models.EscrowRecord, error) {
	var rows []escrowRow
	if err := a.tx.SelectContext(ctx, &rows, `SELECT * FROM escrow_records WHERE initialized ORDER BY address`); err != nil {
		return nil, fmt.Errorf("falha ao listar escrows ativos: %w", err)
	}
	out := make([]models.EscrowRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *pgAccounts) OpenTokenAccount(ctx context.Context, account models.TokenAccount) error {
	if a.readOnly {
		return ErrReadOnly
	}
	res, err := a.tx.ExecContext(ctx,
		`INSERT INTO token_accounts (address, mint, authority, amount) VALUES ($1, $2, $3, $4) ON CONFLICT (address) DO NOTHING`,
		account.Address.String(), account.Mint.String(), account.Authority.String(), int64(account.Amount))
	if err != nil {
		return fmt.Errorf("falha ao abrir conta de token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountExists
	}
	return nil
}

func (a *pgAccounts) GetTokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, bool, error) {
	var row tokenRow
	err := a.tx.GetContext(ctx, &row, `SELECT * FROM token_accounts WHERE address = $1`+a.lockClause(), address.String())
	if errors.Is(err, sql.ErrNoRows) {
		return models.TokenAccount{}, false, nil
	}
	if err != nil {
		return models.TokenAccount{}, false, fmt.Errorf("falha ao buscar conta de token: %w", err)
	}
	keys, err := parseKeys(row.Address, row.Mint, row.Authority)
	if err != nil {
		return models.TokenAccount{}, false, err
	}
	return models.TokenAccount{Address: keys[0], Mint: keys[1], Authority: keys[2], Amount: uint64(row.Amount)}, true, nil
}

func (a *pgAccounts) SetTokenAuthority(ctx context.Context, address, authority solana.PublicKey) error {
	if a.readOnly {
		return ErrReadOnly
	}
	res, err := a.tx.ExecContext(ctx, `UPDATE token_accounts SET authority = $1 WHERE address = $2`, authority.String(), address.String())
	if err != nil {
		return fmt.Errorf("falha ao atualizar autoridade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *pgAccounts) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var amount int64
	err := a.tx.GetContext(ctx, &amount, `SELECT amount FROM balances WHERE owner = $1`, owner.String())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("falha ao buscar saldo: %w", err)
	}
	return uint64(amount), nil
}

// lockBalances trava as linhas de saldo em ordem de endereço para evitar deadlock.
func (a *pgAccounts) lockBalances(ctx context.Context, owners ...solana.PublicKey) (map[string]uint64, error) {
	keys := make([]string, len(owners))
	for i, o := range owners {
		keys[i] = o.String()
	}
	var rows []struct {
		Owner  string `db:"owner"`
		Amount int64  `db:"amount"`
	}
	err := a.tx.SelectContext(ctx, &rows,
		`SELECT owner, amount FROM balances WHERE owner = ANY($1) ORDER BY owner FOR UPDATE`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("falha ao travar saldos: %w", err)
	}
	out := make(map[string]uint64, len(rows))
	for _, r := range rows {
		out[r.Owner] = uint64(r.Amount)
	}
	return out, nil
}

func (a *pgAccounts) setBalance(ctx context.Context, owner string, amount uint64) error {
	_, err := a.tx.ExecContext(ctx,
		`INSERT INTO balances (owner, amount) VALUES ($1, $2) ON CONFLICT (owner) DO UPDATE SET amount = EXCLUDED.amount`,
		owner, int64(amount))
	if err != nil {
		return fmt.Errorf("falha ao gravar saldo: %w", err)
	}
	return nil
}

func (a *pgAccounts) Deposit(ctx context.Context, owner solana.PublicKey, amount uint64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	balances, err := a.lockBalances(ctx, owner)
	if err != nil {
		return err
	}
	next, err := credit(balances[owner.String()], amount)
	if err != nil {
		return err
	}
	return a.setBalance(ctx, owner.String(), next)
}

func (a *pgAccounts) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	if a.readOnly {
		return ErrReadOnly
	}
	balances, err := a.lockBalances(ctx, from, to)
	if err != nil {
		return err
	}
	src := balances[from.String()]
	if src < amount {
		return ErrInsufficientFunds
	}
	if from.Equals(to) {
		return nil
	}
	dst, err := credit(balances[to.String()], amount)
	if err != nil {
		return err
	}
	if err := a.setBalance(ctx, from.String(), src-amount); err != nil {
		return err
	}
	return a.setBalance(ctx, to.String(), dst)
}

func (a *pgAccounts) PutMetadata(ctx context.Context, metadata models.AssetMetadata) error {
	if a.readOnly {
		return ErrReadOnly
	}
	creators, err := json.Marshal(metadata.Creators)
	if err != nil {
		return err
	}
	_, err = a.tx.ExecContext(ctx, `INSERT INTO asset_metadata (address, mint, seller_fee_basis_points, creators)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET mint = EXCLUDED.mint,
			seller_fee_basis_points = EXCLUDED.seller_fee_basis_points, creators = EXCLUDED.creators`,
		metadata.Address.String(), metadata.Mint.String(), int32(metadata.SellerFeeBasisPoints), string(creators))
	if err != nil {
		return fmt.Errorf("falha ao salvar metadados: %w", err)
	}
	return nil
}

func (a *pgAccounts) GetMetadata(ctx context.Context, address solana.PublicKey) (models.AssetMetadata, bool, error) {
	var row metadataRow
	err := a.tx.GetContext(ctx, &row, `SELECT * FROM asset_metadata WHERE address = $1`, address.String())
	if errors.Is(err, sql.ErrNoRows) {
		return models.AssetMetadata{}, false, nil
	}
	if err != nil {
		return models.AssetMetadata{}, false, fmt.Errorf("falha ao buscar metadados: %w", err)
	}
	keys, err := parseKeys(row.Address, row.Mint)
	if err != nil {
		return models.AssetMetadata{}, false, err
	}
	md := models.AssetMetadata{Address: keys[0], Mint: keys[1], SellerFeeBasisPoints: uint16(row.SellerFeeBasisPoints)}
	if err := json.Unmarshal(row.Creators, &md.Creators); err != nil {
		return models.AssetMetadata{}, false, fmt.Errorf("falha ao decodificar criadores: %w", err)
	}
	return md, true, nil
}

func (a *pgAccounts) RecordSettlement(ctx context.Context, s models.Settlement) error {
	if a.readOnly {
		return ErrReadOnly
	}
	payouts, err := json.Marshal(s.Payouts)
	if err != nil {
		return err
	}
	_, err = a.tx.ExecContext(ctx, `INSERT INTO settlements (id, kind, escrow, actor, new_authority, price, payouts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, string(s.Kind), s.Escrow.String(), s.Actor.String(), s.NewAuthority.String(), int64(s.Price), string(payouts), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("falha ao registrar liquidação: %w", err)
	}
	return nil
}

func (a *pgAccounts) Settlements(ctx context.Context, escrow solana.PublicKey) ([]models.Settlement, error) {
	var rows []settlementRow
	err := a.tx.SelectContext(ctx, &rows, `SELECT * FROM settlements WHERE escrow = $1 ORDER BY created_at`, escrow.String())
	if err != nil {
		return nil, fmt.Errorf("falha ao listar liquidações: %w", err)
	}
	out := make([]models.Settlement, 0, len(rows))
	for _, row := range rows {
		keys, err := parseKeys(row.Escrow, row.Actor, row.NewAuthority)
		if err != nil {
			return nil, err
		}
		s := models.Settlement{
			ID:           row.ID,
			Kind:         models.SettlementKind(row.Kind),
			Escrow:       keys[0],
			Actor:        keys[1],
			NewAuthority: keys[2],
			Price:        uint64(row.Price),
			CreatedAt:    row.CreatedAt,
		}
		if err := json.Unmarshal(row.Payouts, &s.Payouts); err != nil {
			return nil, fmt.Errorf("falha ao decodificar pagamentos: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}
