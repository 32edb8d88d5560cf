package schema

import (
	"fmt"

	"github.com/JonMunkholm/loglens/internal/core"
)

// sampleIndex is the row inspected for signature fields: the second data
// row after blank lines are dropped. Exports from some tools put a label row
// directly under the header, so the first data row is never sampled.
const sampleIndex = 1

// Classifier assigns schema labels from a fixed signature table. It is safe
// for concurrent use; the table is read-only after construction.
type Classifier struct {
	sigs []Signature
}

// NewClassifier builds a classifier over sigs, or DefaultSignatures when no
// signatures are given.
func NewClassifier(sigs ...Signature) (*Classifier, error) {
	if len(sigs) == 0 {
		sigs = DefaultSignatures
	}
	if err := validateSignatures(sigs); err != nil {
		return nil, fmt.Errorf("new classifier: %w", err)
	}
	return &Classifier{sigs: cloneSignatures(sigs)}, nil
}

// MustNewClassifier is NewClassifier for tables known to be valid.
func MustNewClassifier(sigs ...Signature) *Classifier {
	c, err := NewClassifier(sigs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the label of the first signature with a field present in
// the sampled row. Tables with fewer than two rows are unknown. A field
// counts as present even when its value is nil.
func (c *Classifier) Classify(table *core.Table) core.SchemaLabel {
	if table.Len() <= sampleIndex {
		return core.LabelUnknown
	}
	row := table.Rows[sampleIndex]

	for _, sig := range c.sigs {
		for _, field := range sig.Fields {
			if row.Has(field) {
				return sig.Label
			}
		}
	}
	return core.LabelUnknown
}

// Signatures returns a copy of the table in priority order.
func (c *Classifier) Signatures() []Signature {
	return cloneSignatures(c.sigs)
}
