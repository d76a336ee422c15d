package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/ecodata/edk/fake"
)

// FakeMain is wrapped by NewFakeCommand and only exported for testing
// purposes.
var FakeMain *fake.Main

// NewFakeCommand returns a new cobra command wrapping FakeMain.
func NewFakeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	FakeMain = fake.NewMain()
	fakeCommand := &cobra.Command{
		Use:   "fake",
		Short: "fake - generate fake occurrence data",
		Long:  `Emits a deterministic CSV of fake occurrence records for demos and tests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return FakeMain.Run()
		},
	}
	flags := fakeCommand.Flags()
	if err := commandeer.Flags(flags, FakeMain); err != nil {
		panic(err)
	}
	return fakeCommand
}

func init() {
	subcommandFns["fake"] = NewFakeCommand
}
