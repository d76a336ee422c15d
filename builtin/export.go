package builtin

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

// JSONFile returns the "json_file" exporter. It writes the entity's
// accumulated values to <dir>/<entityID>.json and returns the path written.
func JSONFile() edk.Plugin {
	return &edk.Func{
		PluginName: "json_file",
		PluginKind: edk.KindExporter,
		ParamsSchema: edk.Schema{Fields: []edk.Field{
			{Name: "dir", Type: edk.TString, Required: true, Help: "directory to write entity files into"},
		}},
		Fn: func(ctx context.Context, in *edk.Input, params edk.Params) (interface{}, error) {
			dir := params.String("dir")
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrap(err, "creating export directory")
			}
			data, err := json.MarshalIndent(in.Values, "", "  ")
			if err != nil {
				return nil, errors.Wrap(err, "encoding values")
			}
			path := filepath.Join(dir, in.EntityID+".json")
			if err := ioutil.WriteFile(path, data, 0644); err != nil {
				return nil, errors.Wrap(err, "writing entity file")
			}
			return path, nil
		},
	}
}
