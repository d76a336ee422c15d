package builtin

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

// Occurrences returns the "occurrences" loader. It loads a source table and
// keeps the rows belonging to the current entity: for hierarchy-backed
// groups that means any row whose entity column matches a node in the
// entity's subtree, so a genus sees the occurrences of all its species.
func Occurrences() edk.Plugin {
	return &edk.Func{
		PluginName: "occurrences",
		PluginKind: edk.KindLoader,
		ParamsSchema: edk.Schema{Fields: []edk.Field{
			{Name: "table", Type: edk.TString, Required: true, Help: "source table to load rows from"},
			{Name: "entityColumn", Type: edk.TString, Help: "column holding the entity id (default id_taxon)"},
		}},
		Fn: func(ctx context.Context, in *edk.Input, params edk.Params) (interface{}, error) {
			col := params.String("entityColumn")
			if col == "" {
				col = "id_taxon"
			}
			rows, err := in.Tables.Load(ctx, params.String("table"))
			if err != nil {
				return nil, errors.Wrap(err, "loading table")
			}
			if in.Tree != nil && in.Node != nil {
				keys, err := in.Tree.SubtreeKeys(in.Node.ID)
				if err != nil {
					return nil, errors.Wrap(err, "collecting subtree keys")
				}
				return rows.WhereIn(col, keys), nil
			}
			return rows.Where(col, in.EntityID), nil
		},
	}
}
