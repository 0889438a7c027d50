// Package metadata encodes certificate data into ledger auxiliary-data
// metadata and decodes it back from chain responses.
package metadata

import "strconv"

// LabelCertificate is the metadata label used for single-certificate anchors.
const LabelCertificate uint64 = 674

// MaxTextLength is the ledger limit for a metadata text string, in bytes.
const MaxTextLength = 64

// DefaultMaxSize is the default ceiling for the encoded metadata, in bytes.
const DefaultMaxSize = 16384

// Value is one labelled value of a certificate field.
type Value struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Type     string `json:"type"`
	IsUnique bool   `json:"isUnique"`
}

// Field is a keyed group of values. Keys are unique within a certificate.
type Field struct {
	Key    string  `json:"key"`
	Values []Value `json:"values"`
}

// Certificate is the anchored payload. Index is -1 for single anchors and the
// zero-based item position for bulk anchors.
type Certificate struct {
	Type  string  `json:"certificateType"`
	Index int     `json:"certificateIndex"`
	Data  []Field `json:"certificateData"`
}

// Field returns the field with key, if present.
func (c *Certificate) Field(key string) (Field, bool) {
	for _, f := range c.Data {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// BulkLabel returns the label for bulk item i: the decimal text "674"
// followed by i+1, read as an integer (item 0 -> 6741, item 9 -> 67410).
func BulkLabel(i int) uint64 {
	label, err := strconv.ParseUint(strconv.FormatUint(LabelCertificate, 10)+strconv.Itoa(i+1), 10, 64)
	if err != nil {
		// Only reachable for indices whose label overflows uint64.
		panic("metadata: bulk label overflow for index " + strconv.Itoa(i))
	}
	return label
}

// MaxBulkItems bounds bulk batches so BulkLabel never overflows.
const MaxBulkItems = 1_000_000
