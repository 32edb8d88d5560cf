package analysis

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/logging"
)

// Probability ranges of synthesized results, inclusive.
const (
	AttackProbabilityMin = 60
	AttackProbabilityMax = 99
	SafeProbabilityMin   = 0
	SafeProbabilityMax   = 30
)

// MetricRange is one synthesized counter with its attack and benign bounds.
type MetricRange struct {
	Name                 string
	AttackMin, AttackMax int
	BenignMin, BenignMax int
}

// FallbackMetrics lists the three counters synthesized per label, in the
// order they appear on a result.
var FallbackMetrics = map[core.SchemaLabel][]MetricRange{
	core.LabelFirewall: {
		{"Allow", 100, 500, 500, 2000},
		{"Deny", 200, 1000, 0, 50},
		{"Drop", 100, 800, 0, 30},
	},
	core.LabelSystem: {
		{"Error Events", 50, 300, 0, 20},
		{"Failed Logins", 20, 200, 0, 5},
		{"Privilege Escalations", 1, 20, 0, 1},
	},
	core.LabelCloud: {
		{"Unauthorized API Calls", 20, 300, 0, 10},
		{"Suspicious Regions", 2, 15, 0, 1},
		{"Instance Launches", 10, 100, 0, 5},
	},
	core.LabelUnknown: {
		{"Suspicious IPs", 10, 100, 0, 5},
		{"Failed Logins", 20, 200, 0, 5},
		{"Total Requests", 5000, 20000, 1000, 5000},
	},
}

// verdictColumns are table columns that some exports use to carry a
// per-line verdict.
var verdictColumns = []string{"label", "class", "verdict", "prediction", "attack_cat"}

// Generate synthesizes the probability and metrics for label. The result
// shape depends only on label; the values depend on isAttack and rng.
func Generate(label core.SchemaLabel, isAttack bool, rng *rand.Rand) (core.Status, float64, []core.Metric) {
	ranges, ok := FallbackMetrics[label]
	if !ok {
		ranges = FallbackMetrics[core.LabelUnknown]
	}

	status := core.StatusSafe
	lo, hi := SafeProbabilityMin, SafeProbabilityMax
	if isAttack {
		status = core.StatusProbableAttack
		lo, hi = AttackProbabilityMin, AttackProbabilityMax
	}
	probability := float64(between(rng, lo, hi))

	metrics := make([]core.Metric, len(ranges))
	for i, r := range ranges {
		v := between(rng, r.BenignMin, r.BenignMax)
		if isAttack {
			v = between(rng, r.AttackMin, r.AttackMax)
		}
		metrics[i] = core.Metric{Name: r.Name, Value: float64(v)}
	}
	return status, probability, metrics
}

func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

// FallbackAnalyzer synthesizes results locally when no analysis service is
// configured. Its results carry core.OriginFallback.
type FallbackAnalyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewFallbackAnalyzer uses rng for every draw, or a randomly seeded source
// when rng is nil.
func NewFallbackAnalyzer(rng *rand.Rand) *FallbackAnalyzer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &FallbackAnalyzer{rng: rng, now: time.Now}
}

// Analyze derives the attack signal from req and synthesizes a result.
func (a *FallbackAnalyzer) Analyze(ctx context.Context, req core.AnalysisRequest) (core.NormalizedResult, error) {
	if !req.Label.Resolved() {
		return core.NormalizedResult{}, core.NewValidationError("fallback analyze", "no log type selected")
	}
	if err := ctx.Err(); err != nil {
		return core.NormalizedResult{}, core.NewSubmissionError("fallback analyze", err)
	}

	attack := IsAttack(req)

	a.mu.Lock()
	status, probability, metrics := Generate(req.Label, attack, a.rng)
	a.mu.Unlock()

	logging.FromContext(ctx).Info("fallback analysis generated",
		"file", req.FileName,
		"label", req.Label,
		"status", status,
	)

	return core.NormalizedResult{
		ID:          uuid.New(),
		SourceName:  req.FileName,
		Label:       req.Label,
		Status:      status,
		Probability: probability,
		ObservedAt:  a.now().UTC(),
		Metrics:     metrics,
		Origin:      core.OriginFallback,
	}, nil
}

// IsAttack is the fallback's attack signal: the request's verdict when one
// was supplied, otherwise any verdict column in the decoded table. Without
// either the answer is false.
func IsAttack(req core.AnalysisRequest) bool {
	if strings.TrimSpace(req.Verdict) != "" {
		return IsAttackText(req.Verdict)
	}
	if req.Table == nil {
		return false
	}

	var cols []string
	for _, h := range req.Table.Header {
		for _, vc := range verdictColumns {
			if strings.EqualFold(h, vc) {
				cols = append(cols, h)
			}
		}
	}
	for _, row := range req.Table.Rows {
		for _, col := range cols {
			if s, ok := row[col].(string); ok && IsAttackText(s) {
				return true
			}
		}
	}
	return false
}
