package fake

import (
	"os"

	"github.com/pkg/errors"
)

// Main holds the execution state for the fake data generator command.
type Main struct {
	Seed int64  `help:"Seed for the random generator. Same seed, same data."`
	Num  int    `help:"Number of occurrence records to generate."`
	File string `help:"File to write CSV to. Empty means stdout."`
}

// NewMain returns a Main with defaults.
func NewMain() *Main {
	return &Main{
		Seed: 1,
		Num:  1000,
	}
}

// Run generates the occurrence CSV.
func (m *Main) Run() error {
	out := os.Stdout
	if m.File != "" {
		f, err := os.Create(m.File)
		if err != nil {
			return errors.Wrap(err, "creating output file")
		}
		defer f.Close()
		out = f
	}
	return NewGenerator(m.Seed).WriteCSV(out, m.Num)
}
