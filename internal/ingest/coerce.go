package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex matches plain decimal and exponent notation. Currency symbols,
// thousands separators and hex are left as strings.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// maxSafeInteger is the largest integer a float64 holds exactly. Larger
// integer-looking cells (account ids, request ids) stay strings.
const maxSafeInteger = 1<<53 - 1

// coerceCell converts a raw cell into the value stored on a Row. Coercion
// never fails: anything that is not clearly a number, boolean or empty is
// returned unchanged.
func coerceCell(raw string) any {
	if raw == "" {
		return nil
	}

	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	if !numericRegex.MatchString(s) {
		return raw
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return raw
	}
	if f == math.Trunc(f) && math.Abs(f) > maxSafeInteger {
		return raw
	}
	return f
}
