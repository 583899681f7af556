package escrow

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer é uma conta informada pelo chamador junto com a indicação de que ela
// assinou a instrução.
type Signer struct {
	Key    solana.PublicKey
	Signed bool
}

func requireSigner(s Signer) error {
	if !s.Signed || s.Key.IsZero() {
		return fmt.Errorf("%w: %s", ErrMissingSignature, s.Key)
	}
	return nil
}

func requirePriceInRange(price, min, max uint64) error {
	if price < min || price >= max {
		return fmt.Errorf("%w: %d não está em [%d, %d)", ErrPriceOutOfRange, price, min, max)
	}
	return nil
}

// requireSame compara a conta informada pelo chamador com o valor calculado ou
// guardado pelo próprio sistema; o rótulo do chamador nunca é suficiente.
func requireSame(sentinel error, supplied, expected solana.PublicKey) error {
	if !supplied.Equals(expected) {
		return fmt.Errorf("%w: recebido %s, esperado %s", sentinel, supplied, expected)
	}
	return nil
}

func requireDerived(sentinel error, supplied solana.PublicKey, derive func() (solana.PublicKey, error)) error {
	expected, err := derive()
	if err != nil {
		return err
	}
	return requireSame(sentinel, supplied, expected)
}
