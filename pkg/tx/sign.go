package tx

import (
	"bytes"
	"fmt"

	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

// AuxData is auxiliary data attached to a transaction.
type AuxData interface {
	CBOR() []byte
	Hash() types.Hash
}

// Sign hashes the body, signs the hash with signer and attaches one vkey
// witness. The body must commit to exactly the aux data supplied.
func Sign(body *Body, aux AuxData, signer crypto.Signer) (*Transaction, error) {
	if err := body.Validate(); err != nil {
		return nil, err
	}

	var auxBytes []byte
	switch {
	case body.AuxDataHash == nil && aux == nil:
	case body.AuxDataHash == nil || aux == nil:
		return nil, ErrMissingMetadata
	default:
		auxBytes = aux.CBOR()
		if h := crypto.Hash(auxBytes); h != *body.AuxDataHash {
			return nil, fmt.Errorf("%w: aux data hash %s does not match body", ErrMissingMetadata, h)
		}
	}

	raw, err := body.CBOR()
	if err != nil {
		return nil, err
	}
	id := crypto.Hash(raw)
	sig, err := signer.Sign(id[:])
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	return &Transaction{
		Body:      body,
		Witnesses: []Witness{{VKey: signer.PublicKey(), Signature: sig}},
		AuxData:   auxBytes,
		id:        id,
		body:      raw,
	}, nil
}

// VerifyWitnesses checks every witness signature against the body hash.
func (t *Transaction) VerifyWitnesses() error {
	if len(t.Witnesses) == 0 {
		return ErrMissingSig
	}
	for i, w := range t.Witnesses {
		if !crypto.VerifySignature(t.id[:], w.Signature, w.VKey) {
			return fmt.Errorf("witness %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}

// SignedBy reports whether the transaction carries a witness for keyHash.
func (t *Transaction) SignedBy(keyHash types.KeyHash) bool {
	for _, w := range t.Witnesses {
		h := crypto.KeyHash(w.VKey)
		if bytes.Equal(h[:], keyHash[:]) {
			return true
		}
	}
	return false
}
