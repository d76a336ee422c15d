package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ecodata/edk"
	"github.com/ecodata/edk/builtin"
)

// NewPluginsCommand returns a cobra command listing the registered plugins.
func NewPluginsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "plugins - list available plugins by kind",
		Long:  `Lists every registered plugin grouped by kind, with its parameters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := edk.NewRegistry()
			if err := builtin.Register(reg); err != nil {
				return err
			}
			for _, kind := range edk.Kinds() {
				plugins := reg.ListByKind(kind)
				if len(plugins) == 0 {
					continue
				}
				fmt.Fprintf(stdout, "%s:\n", kind)
				for _, p := range plugins {
					fmt.Fprintf(stdout, "  %s\n", p.Name())
					for _, f := range p.Schema().Fields {
						req := ""
						if f.Required {
							req = " (required)"
						}
						fmt.Fprintf(stdout, "    %s: %s%s - %s\n", f.Name, f.Type, req, f.Help)
					}
				}
			}
			return nil
		},
	}
}

func init() {
	subcommandFns["plugins"] = NewPluginsCommand
}
