package cmd

import (
	"io"
	"log"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/ecodata/edk/runner"
)

// HierarchyMain is wrapped by NewHierarchyCommand and only exported for
// testing purposes.
var HierarchyMain *runner.TreeMain

// NewHierarchyCommand returns a new cobra command wrapping HierarchyMain.
func NewHierarchyCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	HierarchyMain = runner.NewTreeMain()
	hierarchyCommand := &cobra.Command{
		Use:   "hierarchy",
		Short: "hierarchy - build the nested-set tree and persist it",
		Long: `Builds the hierarchy tree from its configured source table and
persists it to the leveldb tree store for later runs to query.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := HierarchyMain.Run(); err != nil {
				return err
			}
			log.Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := hierarchyCommand.Flags()
	if err := commandeer.Flags(flags, HierarchyMain); err != nil {
		panic(err)
	}
	return hierarchyCommand
}

func init() {
	subcommandFns["hierarchy"] = NewHierarchyCommand
}
