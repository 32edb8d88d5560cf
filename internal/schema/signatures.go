// Package schema recognizes which known log export a decoded table came from.
//
// Recognition is driven by a table of signature fields: column names whose
// presence in the sampled row identifies a schema. Adding a schema keyword is
// a change to that table (or to a signatures YAML file), not to the
// classifier.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/loglens/internal/core"
)

// Signature lists the fields that identify one schema label.
type Signature struct {
	Label  core.SchemaLabel `yaml:"label" json:"label"`
	Fields []string         `yaml:"fields" json:"fields"`
}

// DefaultSignatures is the built-in table in priority order. The first
// signature with a matching field wins.
//
// requestParameterinistancceType is spelled the way the CloudTrail export
// tool writes it; the corrected spelling is accepted as well.
var DefaultSignatures = []Signature{
	{Label: core.LabelFirewall, Fields: []string{"NAT Source Port", "Packets"}},
	{Label: core.LabelSystem, Fields: []string{"LineId", "Level"}},
	{Label: core.LabelCloud, Fields: []string{"requestParameterinistancceType", "requestParametersInstanceType", "awsRegion"}},
}

type signatureFile struct {
	Signatures []Signature `yaml:"signatures"`
}

// LoadSignatures reads a signature table from a YAML file of the form:
//
//	signatures:
//	  - label: firewall
//	    fields: ["NAT Source Port", "Packets"]
//	  - label: system
//	    fields: ["LineId", "Level"]
//
// Order in the file is priority order.
func LoadSignatures(path string) ([]Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	return ParseSignatures(data)
}

// ParseSignatures decodes and validates a YAML signature table.
func ParseSignatures(data []byte) ([]Signature, error) {
	var f signatureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}
	if err := validateSignatures(f.Signatures); err != nil {
		return nil, err
	}
	return f.Signatures, nil
}

func validateSignatures(sigs []Signature) error {
	if len(sigs) == 0 {
		return fmt.Errorf("signature table is empty")
	}
	seen := make(map[core.SchemaLabel]bool, len(sigs))
	for i, sig := range sigs {
		if !sig.Label.Resolved() || sig.Label == core.LabelUnknown {
			return fmt.Errorf("signature %d: label %q cannot be matched", i, sig.Label)
		}
		if seen[sig.Label] {
			return fmt.Errorf("signature %d: label %q listed twice", i, sig.Label)
		}
		seen[sig.Label] = true
		if len(sig.Fields) == 0 {
			return fmt.Errorf("signature %d: label %q has no fields", i, sig.Label)
		}
		for _, field := range sig.Fields {
			if field == "" {
				return fmt.Errorf("signature %d: label %q has an empty field name", i, sig.Label)
			}
		}
	}
	return nil
}

func cloneSignatures(sigs []Signature) []Signature {
	out := make([]Signature, len(sigs))
	for i, sig := range sigs {
		out[i] = Signature{Label: sig.Label, Fields: append([]string(nil), sig.Fields...)}
	}
	return out
}
