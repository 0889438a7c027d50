package tx

import (
	"errors"
	"testing"

	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key
}

func TestValidate_Valid(t *testing.T) {
	if err := testBody().Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Body)
		want   error
	}{
		{"no inputs", func(b *Body) { b.Inputs = nil }, ErrNoInputs},
		{"no outputs", func(b *Body) { b.Outputs = nil }, ErrNoOutputs},
		{"zero fee", func(b *Body) { b.Fee = 0 }, ErrZeroFee},
		{"duplicate input", func(b *Body) { b.Inputs = append(b.Inputs, b.Inputs[0]) }, ErrDuplicateInput},
		{"zero output", func(b *Body) { b.Outputs[0].Amount = 0 }, ErrZeroOutput},
		{"empty address", func(b *Body) { b.Outputs[0].Address = types.Address{} }, ErrInvalidAddress},
		{"overflow", func(b *Body) {
			b.Outputs = append(b.Outputs, Output{Address: testAddress(1), Amount: ^uint64(0)})
		}, ErrOutputOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBody()
			tt.mutate(b)
			if err := b.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSign_RejectsInvalidBody(t *testing.T) {
	b := testBody()
	b.Inputs = nil
	if _, err := Sign(b, sampleAux, mustKey(t)); !errors.Is(err, ErrNoInputs) {
		t.Errorf("Sign() error = %v, want ErrNoInputs", err)
	}
}

func TestVerifyWitnesses_None(t *testing.T) {
	tx := &Transaction{Body: testBody()}
	if err := tx.VerifyWitnesses(); !errors.Is(err, ErrMissingSig) {
		t.Errorf("VerifyWitnesses() error = %v, want ErrMissingSig", err)
	}
}
