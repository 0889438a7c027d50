package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/blinklabs-io/gouroboros/cbor"
)

type wireValue struct {
	Label    string `cbor:"label" json:"label"`
	Value    string `cbor:"value" json:"value"`
	Type     string `cbor:"type" json:"type"`
	IsUnique string `cbor:"isUnique" json:"isUnique"`
}

type wireCertificate struct {
	Type  string                 `cbor:"certificateType" json:"certificateType"`
	Index *string                `cbor:"certificateIndex" json:"certificateIndex"`
	Data  map[string][]wireValue `cbor:"certificateData" json:"certificateData"`
}

// DecodeCBOR decodes an auxiliary-data metadata map into entries ordered by
// label. Map key order is not preserved by decoding, so fields come back
// sorted by key.
func DecodeCBOR(raw []byte) ([]Entry, error) {
	var wire map[uint64]wireCertificate
	if _, err := cbor.Decode(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	entries := make([]Entry, 0, len(wire))
	for label, w := range wire {
		cert, err := w.certificate()
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", label, err)
		}
		entries = append(entries, Entry{Label: label, Certificate: *cert})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })
	return entries, nil
}

// DecodeJSON decodes the JSON rendering of one certificate metadatum, as
// returned by chain indexers.
func DecodeJSON(raw []byte) (*Certificate, error) {
	var w wireCertificate
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode metadata json: %w", err)
	}
	return w.certificate()
}

func (w *wireCertificate) certificate() (*Certificate, error) {
	cert := &Certificate{Type: w.Type, Index: -1}
	if w.Index != nil {
		idx, err := strconv.Atoi(*w.Index)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate index %q", *w.Index)
		}
		cert.Index = idx
	}

	keys := make([]string, 0, len(w.Data))
	for k := range w.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cert.Data = make([]Field, 0, len(keys))
	for _, k := range keys {
		f := Field{Key: k, Values: make([]Value, 0, len(w.Data[k]))}
		for _, v := range w.Data[k] {
			unique, err := strconv.ParseBool(v.IsUnique)
			if err != nil {
				return nil, fmt.Errorf("invalid isUnique %q for key %q", v.IsUnique, k)
			}
			f.Values = append(f.Values, Value{Label: v.Label, Value: v.Value, Type: v.Type, IsUnique: unique})
		}
		cert.Data = append(cert.Data, f)
	}
	return cert, nil
}

// Equal reports whether two certificates carry the same type, index and
// data. Field order is ignored; value order within a field is not.
func Equal(a, b *Certificate) bool {
	if a.Type != b.Type || a.Index != b.Index || len(a.Data) != len(b.Data) {
		return false
	}
	for _, fa := range a.Data {
		fb, ok := b.Field(fa.Key)
		if !ok || len(fa.Values) != len(fb.Values) {
			return false
		}
		for i := range fa.Values {
			if fa.Values[i] != fb.Values[i] {
				return false
			}
		}
	}
	return true
}
