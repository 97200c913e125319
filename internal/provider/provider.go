package provider

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"marketfeed/internal/market"
)

// Descriptor is the static description of an upstream market-data source.
// It is built once at startup and never mutated.
type Descriptor struct {
	ID        string
	Name      string
	BaseURL   string
	Endpoints map[market.Operation]string
	// RateLimit is the declared requests per minute.
	RateLimit int
}

// Endpoint joins the base URL with the template for op.
func (d Descriptor) Endpoint(op market.Operation) string {
	return strings.TrimRight(d.BaseURL, "/") + d.Endpoints[op]
}

// Normalizer builds request URLs for one provider and translates that
// provider's payloads into the canonical model.
type Normalizer interface {
	URL(d Descriptor, op market.Operation, req market.Request) (string, error)
	// Normalize returns nil when body does not have the expected shape.
	Normalize(op market.Operation, req market.Request, body []byte) *market.Result
}

// Number reads a JSON number or numeric string. Missing, non-numeric,
// NaN and infinite values all read as 0.
func Number(r gjson.Result) float64 {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0
		}
		f = v
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Finite replaces NaN and infinities with 0.
func Finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
