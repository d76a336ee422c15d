package builtin

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

// TopValues returns the "top_values" widget: the n most frequent values of a
// column, ties broken lexicographically so output is stable.
func TopValues() edk.Plugin {
	return &edk.Func{
		PluginName: "top_values",
		PluginKind: edk.KindWidget,
		ParamsSchema: edk.Schema{Fields: []edk.Field{
			{Name: "rows", Type: edk.TList, Required: true, Help: "row set to tally"},
			{Name: "field", Type: edk.TString, Required: true, Help: "column to tally values of"},
			{Name: "n", Type: edk.TInt, Help: "how many values to keep (default 10)", Min: floatp(1)},
		}},
		Fn: func(ctx context.Context, in *edk.Input, params edk.Params) (interface{}, error) {
			rows := params.Rows("rows")
			if rows == nil {
				return nil, errors.New("'rows' does not hold tabular data")
			}
			field := params.String("field")
			n := params.Int("n", 10)

			counts := make(map[string]int)
			for _, r := range rows {
				if v := r.Get(field); v != "" {
					counts[v]++
				}
			}
			ranked := make([]interface{}, 0, len(counts))
			for v, c := range counts {
				ranked = append(ranked, map[string]interface{}{"value": v, "count": c})
			}
			sort.Slice(ranked, func(i, j int) bool {
				a, b := ranked[i].(map[string]interface{}), ranked[j].(map[string]interface{})
				if a["count"].(int) != b["count"].(int) {
					return a["count"].(int) > b["count"].(int)
				}
				return a["value"].(string) < b["value"].(string)
			})
			if len(ranked) > n {
				ranked = ranked[:n]
			}
			return ranked, nil
		},
	}
}

// InfoPanel returns the "info_panel" widget, a titled pass-through of
// already-computed values for rendering.
func InfoPanel() edk.Plugin {
	return &edk.Func{
		PluginName: "info_panel",
		PluginKind: edk.KindWidget,
		ParamsSchema: edk.Schema{Fields: []edk.Field{
			{Name: "title", Type: edk.TString, Required: true, Help: "panel heading"},
			{Name: "items", Type: edk.TMap, Help: "labeled values to display"},
		}},
		Fn: func(ctx context.Context, in *edk.Input, params edk.Params) (interface{}, error) {
			panel := map[string]interface{}{"title": params.String("title")}
			if items, ok := params["items"]; ok {
				panel["items"] = items
			}
			return panel, nil
		},
	}
}
