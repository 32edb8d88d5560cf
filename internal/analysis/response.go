package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"

	"github.com/JonMunkholm/loglens/internal/core"
)

// responseSchema is the contract the analysis service answers with. Older
// firewall models reply with a predictions object instead of metrics.
const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["status", "probability"],
  "properties": {
    "status": {"type": "string", "minLength": 1},
    "probability": {"type": "number", "minimum": 0, "maximum": 100},
    "metrics": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "value"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "value": {"type": ["string", "number"]}
        }
      }
    },
    "predictions": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    }
  },
  "anyOf": [
    {"required": ["metrics"], "properties": {"metrics": {"minItems": 1}}},
    {"required": ["predictions"], "properties": {"predictions": {"minProperties": 1}}}
  ]
}`

var compiledResponseSchema = mustCompileSchema(responseSchema)

func mustCompileSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("analysis: invalid response schema: %v", err))
	}
	return schema
}

// response is the decoded body of a successful analysis call.
type response struct {
	Status      string             `json:"status"`
	Probability float64            `json:"probability"`
	Metrics     []core.Metric      `json:"metrics"`
	Predictions map[string]float64 `json:"predictions"`
}

// predictionOrder fixes the position of the well-known firewall actions.
var predictionOrder = map[string]int{"allow": 0, "deny": 1, "drop": 2}

// parseResponse validates body against the response schema and decodes it.
func parseResponse(body []byte) (*response, error) {
	result, err := compiledResponseSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("undecodable response: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid response: %s", strings.Join(problems, "; "))
	}

	var resp response
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("undecodable response: %w", err)
	}
	resp.Metrics = normalizeMetricValues(resp.Metrics)
	if len(resp.Metrics) == 0 {
		resp.Metrics = metricsFromPredictions(resp.Predictions)
	}
	return &resp, nil
}

// normalizeMetricValues turns json.Number values into float64 so remote and
// fallback results carry the same Go types.
func normalizeMetricValues(metrics []core.Metric) []core.Metric {
	for i, m := range metrics {
		if n, ok := m.Value.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				metrics[i].Value = f
			} else {
				metrics[i].Value = n.String()
			}
		}
	}
	return metrics
}

// metricsFromPredictions lists allow, deny and drop first, then any other
// prediction keys alphabetically.
func metricsFromPredictions(p map[string]float64) []core.Metric {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := predictionOrder[strings.ToLower(keys[i])]
		oj, jok := predictionOrder[strings.ToLower(keys[j])]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})

	metrics := make([]core.Metric, 0, len(keys))
	for _, k := range keys {
		metrics = append(metrics, core.Metric{Name: titleCase(k), Value: p[k]})
	}
	return metrics
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// attackStems flag a word as an attack term when it starts with one of them.
var attackStems = []string{
	"attack", "malicious", "anomal", "abnormal", "intrusion", "exploit",
	"compromis", "threat", "suspicious", "insecure", "unsafe",
}

// negators cancel the attack term that follows them.
var negators = map[string]bool{
	"no": true, "not": true, "non": true, "never": true, "without": true, "zero": true,
}

// negationFillers may sit between a negator and the word it negates, as in
// "no sign of attack" or "not an attack".
var negationFillers = map[string]bool{
	"a": true, "an": true, "the": true, "any": true, "of": true,
	"sign": true, "signs": true, "evidence": true, "known": true,
}

// maxNegationDistance is how many words back a negator may appear.
const maxNegationDistance = 3

// IsAttackText reports whether text reads like an attack verdict. Words
// match whole, so "uncompromised" is not an attack, and a preceding
// negator cancels a match ("No attack detected", "non-malicious").
// "not secure" and "not safe" count as attacks.
func IsAttackText(text string) bool {
	words := splitWords(text)
	for i, w := range words {
		switch {
		case w == "secure" || w == "safe":
			if negated(words, i) {
				return true
			}
		case isAttackWord(w):
			if !negated(words, i) {
				return true
			}
		}
	}
	return false
}

func isAttackWord(w string) bool {
	for _, stem := range attackStems {
		if strings.HasPrefix(w, stem) {
			return true
		}
	}
	return false
}

// negated reports whether words[i] is preceded by a negator, allowing only
// filler words in between.
func negated(words []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-maxNegationDistance; j-- {
		if negators[words[j]] {
			return true
		}
		if !negationFillers[words[j]] {
			return false
		}
	}
	return false
}

// splitWords lowercases text and splits it on anything that is not a letter
// or digit, and on camel-case boundaries ("ProbableAttack").
func splitWords(text string) []string {
	var (
		words []string
		cur   strings.Builder
		prev  rune
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur.WriteRune(unicode.ToLower(r))
		default:
			cur.WriteRune(unicode.ToLower(r))
		}
		prev = r
	}
	flush()
	return words
}

// NormalizeStatus maps the service's status onto core.Status. Anything other
// than the two canonical spellings is judged by IsAttackText.
func NormalizeStatus(s string) core.Status {
	compact := strings.ToLower(strings.Join(strings.Fields(s), ""))
	switch compact {
	case "safe", "benign", "normal":
		return core.StatusSafe
	case "probableattack":
		return core.StatusProbableAttack
	}
	if IsAttackText(s) {
		return core.StatusProbableAttack
	}
	return core.StatusSafe
}
