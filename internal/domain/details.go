package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Detail keys shared by the venues. Kalshi and Polymarket payloads are mapped
// onto the Manifold names at ingestion.
const (
	DetailProbability = "probability"
	DetailVolume      = "volume"
	DetailBettorCount = "uniqueBettorCount"
)

// Signal is one venue-provided market statistic. The concrete types are
// Probability, Volume, BettorCount and UnknownSignal; switch over them in
// that order to stay exhaustive.
type Signal interface {
	Key() string
	Value() any
	signal()
}

// Probability is the implied chance of the YES outcome, in [0, 1].
type Probability float64

// Volume is the traded volume in the venue's unit of account.
type Volume float64

// BettorCount is the number of distinct traders.
type BettorCount int64

// UnknownSignal carries any key the known kinds do not cover, or a known key
// whose value has the wrong shape.
type UnknownSignal struct {
	Name string
	Raw  any
}

func (Probability) Key() string { return DetailProbability }
func (Volume) Key() string { return DetailVolume }
func (BettorCount) Key() string { return DetailBettorCount }
func (u UnknownSignal) Key() string { return u.Name }

func (p Probability) Value() any { return float64(p) }
func (v Volume) Value() any { return float64(v) }
func (b BettorCount) Value() any { return int64(b) }
func (u UnknownSignal) Value() any { return u.Raw }
func (Probability) signal() {}
func (Volume) signal() {}
func (BettorCount) signal() {}
func (UnknownSignal) signal() {}

// Details is the set of signals attached to a market, kept sorted by key so
// encodings are deterministic.
type Details []Signal

// ParseDetails classifies an untyped venue mapping into signals.
func ParseDetails(raw map[string]any) Details {
	if len(raw) == 0 {
		return nil
	}
	out := make(Details, 0, len(raw))
	for k, v := range raw {
		out = append(out, classify(k, v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func classify(key string, v any) Signal {
	n, ok := number(v)
	if !ok {
		return UnknownSignal{Name: key, Raw: v}
	}
	switch key {
	case DetailProbability:
		return Probability(n)
	case DetailVolume:
		return Volume(n)
	case DetailBettorCount:
		if n == math.Trunc(n) {
			return BettorCount(int64(n))
		}
	}
	return UnknownSignal{Name: key, Raw: v}
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Sorted returns a copy of d ordered by key.
func (d Details) Sorted() Details {
	if d == nil {
		return nil
	}
	out := append(Details(nil), d...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Map flattens the signals back into the untyped venue mapping.
func (d Details) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, s := range d {
		m[s.Key()] = s.Value()
	}
	return m
}

// Lookup returns the signal stored under key.
func (d Details) Lookup(key string) (Signal, bool) {
	for _, s := range d {
		if s.Key() == key {
			return s, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the signals as a JSON object; nil encodes as {}.
func (d Details) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// UnmarshalJSON decodes a JSON object into classified signals.
func (d *Details) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("details: %w", err)
	}
	*d = ParseDetails(raw)
	return nil
}

// Describe renders a signal as a short human label.
func Describe(s Signal) string {
	switch v := s.(type) {
	case Probability:
		return fmt.Sprintf("Probability: %d%%", int64(math.Round(float64(v)*100)))
	case Volume:
		return fmt.Sprintf("Trading Volume: %d", int64(math.Round(float64(v))))
	case BettorCount:
		return fmt.Sprintf("Unique Bettors: %d", int64(v))
	case UnknownSignal:
		return fmt.Sprintf("%s: %v", v.Name, v.Raw)
	default:
		panic(fmt.Sprintf("domain: unhandled signal %T", s))
	}
}
