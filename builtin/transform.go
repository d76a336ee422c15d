package builtin

import (
	"context"
	"sort"

	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

// FieldStats returns the "field_stats" transformer. It summarizes one column
// of a row set: how many rows carry a value, how many distinct values there
// are, and min/max/mean when the values parse as numbers.
func FieldStats() edk.Plugin {
	return &edk.Func{
		PluginName: "field_stats",
		PluginKind: edk.KindTransformer,
		ParamsSchema: edk.Schema{Fields: []edk.Field{
			{Name: "rows", Type: edk.TList, Required: true, Help: "row set, usually a loader step reference"},
			{Name: "field", Type: edk.TString, Required: true, Help: "column to summarize"},
		}},
		Fn: func(ctx context.Context, in *edk.Input, params edk.Params) (interface{}, error) {
			rows := params.Rows("rows")
			if rows == nil {
				return nil, errors.New("'rows' does not hold tabular data")
			}
			field := params.String("field")

			count := 0
			distinct := make(map[string]struct{})
			var min, max, sum float64
			numeric := 0
			for _, r := range rows {
				v := r.Get(field)
				if v == "" {
					continue
				}
				count++
				distinct[v] = struct{}{}
				x, err := r.Float(field)
				if err != nil {
					continue
				}
				if numeric == 0 || x < min {
					min = x
				}
				if numeric == 0 || x > max {
					max = x
				}
				sum += x
				numeric++
			}
			stats := map[string]interface{}{
				"count":    count,
				"distinct": len(distinct),
			}
			if numeric > 0 {
				stats["min"] = min
				stats["max"] = max
				stats["mean"] = sum / float64(numeric)
			}
			return stats, nil
		},
	}
}

// Geohash returns the "geohash" transformer. It buckets row coordinates into
// geohash cells and reports per-cell counts, largest cell first. Rows without
// parseable coordinates are skipped.
func Geohash() edk.Plugin {
	return &edk.Func{
		PluginName: "geohash",
		PluginKind: edk.KindTransformer,
		ParamsSchema: edk.Schema{Fields: []edk.Field{
			{Name: "rows", Type: edk.TList, Required: true, Help: "row set with coordinate columns"},
			{Name: "latColumn", Type: edk.TString, Help: "latitude column (default lat)"},
			{Name: "lonColumn", Type: edk.TString, Help: "longitude column (default lon)"},
			{Name: "precision", Type: edk.TInt, Help: "geohash length, 1-12 (default 7)",
				Min: floatp(1), Max: floatp(12)},
		}},
		Fn: func(ctx context.Context, in *edk.Input, params edk.Params) (interface{}, error) {
			rows := params.Rows("rows")
			if rows == nil {
				return nil, errors.New("'rows' does not hold tabular data")
			}
			latCol, lonCol := params.String("latColumn"), params.String("lonColumn")
			if latCol == "" {
				latCol = "lat"
			}
			if lonCol == "" {
				lonCol = "lon"
			}
			precision := params.Int("precision", 7)

			counts := make(map[string]int)
			for _, r := range rows {
				lat, err := r.Float(latCol)
				if err != nil {
					continue
				}
				lon, err := r.Float(lonCol)
				if err != nil {
					continue
				}
				counts[geohash.EncodeWithPrecision(lat, lon, uint(precision))]++
			}
			cells := make([]interface{}, 0, len(counts))
			for h, n := range counts {
				cells = append(cells, map[string]interface{}{"geohash": h, "count": n})
			}
			sort.Slice(cells, func(i, j int) bool {
				a, b := cells[i].(map[string]interface{}), cells[j].(map[string]interface{})
				if a["count"].(int) != b["count"].(int) {
					return a["count"].(int) > b["count"].(int)
				}
				return a["geohash"].(string) < b["geohash"].(string)
			})
			return cells, nil
		},
	}
}

func floatp(x float64) *float64 { return &x }
