package metadata

import (
	"fmt"
	"strconv"

	"github.com/certledger/certanchor/pkg/cbormap"
	"github.com/certledger/certanchor/pkg/crypto"
	"github.com/certledger/certanchor/pkg/types"
)

// Wire keys of the certificate metadatum.
const (
	keyType     = "certificateType"
	keyIndex    = "certificateIndex"
	keyData     = "certificateData"
	keyLabel    = "label"
	keyValue    = "value"
	keyValType  = "type"
	keyIsUnique = "isUnique"
)

// Entry is one labelled certificate inside a metadata blob.
type Entry struct {
	Label       uint64
	Certificate Certificate
}

// Metadata is an encoded auxiliary-data blob ready to be attached to a
// transaction body.
type Metadata struct {
	entries []Entry
	raw     []byte
	hash    types.Hash
}

// CBOR returns the encoded auxiliary data.
func (m *Metadata) CBOR() []byte {
	out := make([]byte, len(m.raw))
	copy(out, m.raw)
	return out
}

// Hash returns the blake2b-256 auxiliary data hash.
func (m *Metadata) Hash() types.Hash {
	return m.hash
}

// Size returns the encoded size in bytes.
func (m *Metadata) Size() int {
	return len(m.raw)
}

// Entries returns the labelled certificates in encoding order.
func (m *Metadata) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Labels returns the metadata labels in encoding order.
func (m *Metadata) Labels() []uint64 {
	labels := make([]uint64, len(m.entries))
	for i, e := range m.entries {
		labels[i] = e.Label
	}
	return labels
}

// Encoder builds certificate metadata under a size ceiling.
type Encoder struct {
	maxSize int
}

// NewEncoder creates an encoder. A non-positive maxSize selects DefaultMaxSize.
func NewEncoder(maxSize int) *Encoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Encoder{maxSize: maxSize}
}

var defaultEncoder = NewEncoder(DefaultMaxSize)

// EncodeSingle encodes one certificate under label 674.
func EncodeSingle(certType string, data []Field) (*Metadata, error) {
	return defaultEncoder.EncodeSingle(certType, data)
}

// EncodeBulk encodes one entry per item under BulkLabel(i).
func EncodeBulk(items []Certificate) (*Metadata, error) {
	return defaultEncoder.EncodeBulk(items)
}

// EncodeSingle encodes one certificate under label 674.
func (e *Encoder) EncodeSingle(certType string, data []Field) (*Metadata, error) {
	cert := Certificate{Type: certType, Index: -1, Data: data}
	if err := Validate(&cert); err != nil {
		return nil, err
	}
	return e.encode([]Entry{{Label: LabelCertificate, Certificate: cert}})
}

// EncodeBulk encodes one entry per item. Item i is tagged with
// certificateIndex i and stored under BulkLabel(i).
func (e *Encoder) EncodeBulk(items []Certificate) (*Metadata, error) {
	if len(items) == 0 {
		return nil, &EmptyFieldError{Field: "certificates"}
	}
	if len(items) > MaxBulkItems {
		return nil, fmt.Errorf("%w: %d certificates exceeds bulk limit %d", ErrValidation, len(items), MaxBulkItems)
	}
	entries := make([]Entry, len(items))
	for i, item := range items {
		item.Index = i
		if err := Validate(&item); err != nil {
			return nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		entries[i] = Entry{Label: BulkLabel(i), Certificate: item}
	}
	return e.encode(entries)
}

func (e *Encoder) encode(entries []Entry) (*Metadata, error) {
	top := cbormap.Map{}
	for _, entry := range entries {
		top = top.Add(entry.Label, certificateMap(&entry.Certificate))
	}
	raw, err := top.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if len(raw) > e.maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMetadataTooLarge, len(raw), e.maxSize)
	}
	return &Metadata{entries: entries, raw: raw, hash: crypto.Hash(raw)}, nil
}

func certificateMap(c *Certificate) cbormap.Map {
	data := cbormap.Map{}
	for _, f := range c.Data {
		values := make([]any, len(f.Values))
		for i, v := range f.Values {
			values[i] = cbormap.Map{}.
				Add(keyLabel, v.Label).
				Add(keyValue, v.Value).
				Add(keyValType, v.Type).
				Add(keyIsUnique, strconv.FormatBool(v.IsUnique))
		}
		data = data.Add(f.Key, values)
	}

	m := cbormap.Map{}.Add(keyType, c.Type)
	if c.Index >= 0 {
		m = m.Add(keyIndex, strconv.Itoa(c.Index))
	}
	return m.Add(keyData, data)
}

// Validate checks a certificate before anything is built or submitted.
func Validate(c *Certificate) error {
	if c.Type == "" {
		return &EmptyFieldError{Field: keyType}
	}
	if err := checkLength(keyType, c.Type); err != nil {
		return err
	}
	if len(c.Data) == 0 {
		return &EmptyFieldError{Field: keyData}
	}
	seen := make(map[string]struct{}, len(c.Data))
	for i, f := range c.Data {
		if f.Key == "" {
			return &EmptyFieldError{Field: "key", Index: i}
		}
		if _, dup := seen[f.Key]; dup {
			return &DuplicateKeyError{Key: f.Key, Index: i}
		}
		seen[f.Key] = struct{}{}
		if err := checkLength("key "+strconv.Quote(f.Key), f.Key); err != nil {
			return err
		}
		for j, v := range f.Values {
			for _, req := range []struct{ name, text string }{
				{keyLabel, v.Label},
				{keyValue, v.Value},
				{keyValType, v.Type},
			} {
				if req.text == "" {
					return &EmptyFieldError{Field: req.name, Key: f.Key, Index: j}
				}
				if err := checkLength(req.name+" of "+strconv.Quote(f.Key), req.text); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkLength(field, s string) error {
	if len(s) > MaxTextLength {
		return &FieldTooLongError{Field: field, Length: len(s)}
	}
	return nil
}
