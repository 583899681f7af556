package escrow

import (
	"errors"
	"fmt"
)

// Kind classifica a falha de uma operação de liquidação.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindAuthorization     Kind = "authorization"
	KindInvalidParameter  Kind = "invalid_parameter"
	KindStateConflict     Kind = "state_conflict"
	KindAccountMismatch   Kind = "account_mismatch"
	KindArithmetic        Kind = "arithmetic"
	KindInsufficientFunds Kind = "insufficient_funds"
)

var (
	ErrMissingSignature = errors.New("assinatura obrigatória ausente")
	ErrNotSeller        = errors.New("chamador não é o vendedor")

	ErrPriceOutOfRange = errors.New("preço fora do intervalo permitido")
	ErrPriceMismatch   = errors.New("preço esperado difere do preço listado")

	ErrAlreadyInitialized = errors.New("registro de escrow já inicializado")
	ErrAlreadySettled     = errors.New("registro de escrow já liquidado")
	ErrNotListed          = errors.New("registro de escrow nunca foi listado")

	ErrSellerMismatch           = errors.New("conta do vendedor não confere")
	ErrAssetMismatch            = errors.New("identidade do ativo não confere")
	ErrSelfTrade                = errors.New("comprador e vendedor são a mesma conta")
	ErrBuyerAuthorityMismatch   = errors.New("conta derivada do comprador não confere")
	ErrMetadataMismatch         = errors.New("conta de metadados não confere")
	ErrMetadataNotFound         = errors.New("metadados do ativo não encontrados")
	ErrCustodyMismatch          = errors.New("conta de custódia não confere")
	ErrCustodyNotFound          = errors.New("conta de custódia não encontrada")
	ErrCustodyMintMismatch      = errors.New("mint da conta de custódia não confere")
	ErrCustodyAuthorityMismatch = errors.New("autoridade da conta de custódia não confere")
	ErrEscrowAuthorityMismatch  = errors.New("autoridade derivada do escrow não confere")
	ErrCreatorMismatch          = errors.New("conta do criador não confere")

	ErrFeeOverflow   = errors.New("overflow no cálculo de taxa")
	ErrFeeUnderflow  = errors.New("taxas excedem o valor disponível")
	ErrInvalidShares = errors.New("participação de criador fora dos limites")

	ErrInsufficientFunds = errors.New("saldo insuficiente do comprador")
)

var kinds = map[error]Kind{
	ErrMissingSignature: KindAuthorization,
	ErrNotSeller:        KindAuthorization,

	ErrPriceOutOfRange: KindInvalidParameter,
	ErrPriceMismatch:   KindInvalidParameter,

	ErrAlreadyInitialized: KindStateConflict,
	ErrAlreadySettled:     KindStateConflict,
	ErrNotListed:          KindStateConflict,

	ErrSellerMismatch:           KindAccountMismatch,
	ErrAssetMismatch:            KindAccountMismatch,
	ErrSelfTrade:                KindAccountMismatch,
	ErrBuyerAuthorityMismatch:   KindAccountMismatch,
	ErrMetadataMismatch:         KindAccountMismatch,
	ErrMetadataNotFound:         KindAccountMismatch,
	ErrCustodyMismatch:          KindAccountMismatch,
	ErrCustodyNotFound:          KindAccountMismatch,
	ErrCustodyMintMismatch:      KindAccountMismatch,
	ErrCustodyAuthorityMismatch: KindAccountMismatch,
	ErrEscrowAuthorityMismatch:  KindAccountMismatch,
	ErrCreatorMismatch:          KindAccountMismatch,

	ErrFeeOverflow:   KindArithmetic,
	ErrFeeUnderflow:  KindArithmetic,
	ErrInvalidShares: KindArithmetic,

	ErrInsufficientFunds: KindInsufficientFunds,
}

// Error é a falha tipada devolvida por List, Buy e Cancel.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("escrow %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// fail embrulha err com a operação e o tipo correspondente ao sentinela.
func fail(op string, err error) error {
	kind := KindUnknown
	for sentinel, k := range kinds {
		if errors.Is(err, sentinel) {
			kind = k
			break
		}
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf devolve o tipo de falha de err, ou KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
