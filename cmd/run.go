package cmd

import (
	"io"
	"log"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/ecodata/edk/runner"
)

// RunMain is wrapped by NewRunCommand and only exported for testing purposes.
var RunMain *runner.Main

// NewRunCommand returns a new cobra command wrapping RunMain.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	RunMain = runner.NewMain()
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "run - execute a pipeline over every group entity",
		Long: `Loads the pipeline YAML, builds the hierarchy if one is configured,
runs the transform chain for every entity, and persists the widgets data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := RunMain.Run(); err != nil {
				return err
			}
			log.Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := runCommand.Flags()
	if err := commandeer.Flags(flags, RunMain); err != nil {
		panic(err)
	}
	return runCommand
}

func init() {
	subcommandFns["run"] = NewRunCommand
}
