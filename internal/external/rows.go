package external

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingField is returned by ParseRows when a required dimension is
// absent from a row.
var ErrMissingField = errors.New("missing required field")

type Field int

const (
	FieldTrader Field = iota
	FieldDate
	FieldVolume
	FieldSwaps
	FieldAvgSwap
	FieldNetFlow
)

func (f Field) String() string {
	switch f {
	case FieldTrader:
		return "trader"
	case FieldDate:
		return "date"
	case FieldVolume:
		return "volume"
	case FieldSwaps:
		return "swaps"
	case FieldAvgSwap:
		return "avgSwap"
	case FieldNetFlow:
		return "netFlow"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Numeric fields are measures; the rest are string dimensions.
func (f Field) Numeric() bool {
	return f >= FieldVolume
}

// Schema maps typed fields to the member names a backend returns.
type Schema struct {
	Members  map[Field]string
	Required []Field
}

// UserVolumeSchema describes the per-day user_axiom_volume cube.
var UserVolumeSchema = Schema{
	Members: map[Field]string{
		FieldTrader:  "user_axiom_volume.fee_payer",
		FieldDate:    "user_axiom_volume.aggregation_date.day",
		FieldVolume:  "user_axiom_volume.total_usd_volume",
		FieldSwaps:   "user_axiom_volume.swap_count",
		FieldAvgSwap: "user_axiom_volume.avg_swap_size",
		FieldNetFlow: "user_axiom_volume.net_usd1_flow",
	},
	Required: []Field{FieldTrader},
}

// Row is one parsed result row.
type Row struct {
	strs map[Field]string
	nums map[Field]float64
}

func (r Row) Str(f Field) string  { return r.strs[f] }
func (r Row) Num(f Field) float64 { return r.nums[f] }

// ParseRows converts raw JSON rows. Measures arrive as numbers or numeric
// strings; null and unparseable values become 0.
func ParseRows(raw []map[string]any, s Schema) ([]Row, error) {
	out := make([]Row, 0, len(raw))
	for i, m := range raw {
		for _, f := range s.Required {
			v, ok := m[s.Members[f]]
			if !ok || v == nil || v == "" {
				return nil, fmt.Errorf("row %d: %w: %s (%s)", i, ErrMissingField, f, s.Members[f])
			}
		}

		row := Row{strs: map[Field]string{}, nums: map[Field]float64{}}
		for f, member := range s.Members {
			v := m[member]
			if f.Numeric() {
				row.nums[f] = toFloat(v)
			} else {
				row.strs[f] = toString(v)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
