package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ferreirogomes/custodia/models"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// tokenAccountSize é o tamanho do layout de uma conta SPL token.
const tokenAccountSize = 165

// SolanaIntegrationService concentra o acesso RPC à Solana: leitura de contas
// de token e preparação de transações pagas pelo FeePayer.
type SolanaIntegrationService struct {
	RPCClient *rpc.Client
	FeePayer  solana.PrivateKey // vazia quando o serviço só lê
	logger    *slog.Logger
}

// NewSolanaIntegrationService cria o serviço. feePayerKeyBase58 pode ser vazia;
// nesse caso a preparação de transações fica indisponível.
func NewSolanaIntegrationService(rpcEndpoint, feePayerKeyBase58 string, logger *slog.Logger) (*SolanaIntegrationService, error) {
	if rpcEndpoint == "" {
		return nil, errors.New("endpoint RPC da Solana não configurado")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SolanaIntegrationService{
		RPCClient: rpc.New(rpcEndpoint),
		logger:    logger,
	}
	if feePayerKeyBase58 != "" {
		feePayer, err := solana.PrivateKeyFromBase58(feePayerKeyBase58)
		if err != nil {
			return nil, fmt.Errorf("falha ao carregar chave privada do Fee Payer: %w", err)
		}
		s.FeePayer = feePayer
	}
	return s, nil
}

// GetTokenAccount lê a conta de token em address. found=false quando a conta
// não existe na rede.
func (s *SolanaIntegrationService) GetTokenAccount(ctx context.Context, address solana.PublicKey) (models.TokenAccount, bool, error) {
	out, err := s.RPCClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return models.TokenAccount{}, false, nil
		}
		return models.TokenAccount{}, false, fmt.Errorf("falha ao buscar conta %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return models.TokenAccount{}, false, nil
	}
	if !out.Value.Owner.Equals(token.ProgramID) {
		return models.TokenAccount{}, false, fmt.Errorf("conta %s não pertence ao programa de token (dono %s)", address, out.Value.Owner)
	}
	account, err := decodeTokenAccount(address, out.Value.Data.GetBinary())
	if err != nil {
		return models.TokenAccount{}, false, err
	}
	return account, true, nil
}

// decodeTokenAccount interpreta o layout SPL token de uma conta.
func decodeTokenAccount(address solana.PublicKey, data []byte) (models.TokenAccount, error) {
	if len(data) < tokenAccountSize {
		return models.TokenAccount{}, fmt.Errorf("conta %s com %d bytes não é uma conta de token", address, len(data))
	}
	var raw token.Account
	if err := bin.NewBinDecoder(data).Decode(&raw); err != nil {
		return models.TokenAccount{}, fmt.Errorf("falha ao decodificar conta de token %s: %w", address, err)
	}
	return models.TokenAccount{
		Address:   address,
		Mint:      raw.Mint,
		Authority: raw.Owner,
		Amount:    raw.Amount,
	}, nil
}

// PrepareSetAuthorityTransaction serializa uma transação SetAuthority que passa
// a conta custody de currentAuthority para newAuthority. A transação sai
// assinada apenas pelo FeePayer; currentAuthority assina do lado do cliente e
// por isso precisa ser uma carteira, nunca uma PDA.
func (s *SolanaIntegrationService) PrepareSetAuthorityTransaction(
	ctx context.Context,
	custody, currentAuthority, newAuthority solana.PublicKey,
) (string, error) { // Retorna a transação codificada em Base64
	if len(s.FeePayer) == 0 {
		return "", ErrChainUnavailable
	}
	resp, err := s.RPCClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("falha ao obter blockhash: %w", err)
	}

	instruction := token.NewSetAuthorityInstruction(
		token.AuthorityAccountOwner,
		newAuthority,
		custody,
		currentAuthority,
		nil,
	).Build()

	return s.signAndEncode(instruction, resp.Value.Blockhash)
}

func (s *SolanaIntegrationService) signAndEncode(instruction solana.Instruction, blockhash solana.Hash) (string, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash,
		solana.TransactionPayer(s.FeePayer.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("falha ao criar transação: %w", err)
	}

	// O FeePayer assina agora; as demais assinaturas são colhidas no cliente.
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.FeePayer.PublicKey()) {
			return &s.FeePayer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("falha ao assinar transação pelo FeePayer: %w", err)
	}

	serializedTx, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("falha ao serializar transação: %w", err)
	}
	s.logger.Debug("transação preparada", "fee_payer", s.FeePayer.PublicKey(), "bytes", len(serializedTx))
	return base64.StdEncoding.EncodeToString(serializedTx), nil
}
