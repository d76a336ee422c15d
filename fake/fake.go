// Package fake generates plausible occurrence data for testing pipelines
// without real survey tables. Generation is fully determined by the seed so
// fixtures are reproducible.
package fake

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/ecodata/edk"
)

type taxon struct {
	family  string
	genus   string
	species string
}

// A small slice of the New Caledonian flora. Order matters: the index is the
// taxon's natural id, so ids are stable across runs.
var taxa = []taxon{
	{"Araucariaceae", "Araucaria", "columnaris"},
	{"Araucariaceae", "Araucaria", "rulei"},
	{"Araucariaceae", "Araucaria", "montana"},
	{"Araucariaceae", "Agathis", "ovata"},
	{"Araucariaceae", "Agathis", "moorei"},
	{"Myrtaceae", "Syzygium", "acre"},
	{"Myrtaceae", "Metrosideros", "operculata"},
	{"Cunoniaceae", "Cunonia", "macrophylla"},
	{"Cunoniaceae", "Geissois", "racemosa"},
	{"Sapotaceae", "Planchonella", "sphaerocarpa"},
}

var collectors = []string{"munzinger", "veillon", "barrabe", "mcpherson", "lowry"}

// Columns is the header of generated occurrence tables.
var Columns = []string{"id_occ", "tax_fam", "tax_gen", "tax_sp", "id_taxon", "lat", "lon", "dbh", "collector", "plot"}

// Generator produces occurrence rows.
type Generator struct {
	Seed     int64
	NumPlots int

	rng *rand.Rand
	n   int
}

// NewGenerator returns a Generator for the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Seed:     seed,
		NumPlots: 8,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Record produces the next occurrence row.
func (g *Generator) Record() (edk.Row, error) {
	g.n++
	tx := taxa[g.rng.Intn(len(taxa))]
	row := edk.Row{
		"id_occ":    fmt.Sprintf("o%d", g.n),
		"tax_fam":   tx.family,
		"tax_gen":   tx.genus,
		"tax_sp":    tx.species,
		"id_taxon":  taxonID(tx),
		"lat":       fmt.Sprintf("%.5f", -22.5+g.rng.Float64()*3.0),
		"lon":       fmt.Sprintf("%.5f", 163.5+g.rng.Float64()*4.0),
		"dbh":       fmt.Sprintf("%.1f", 5+g.rng.Float64()*115),
		"collector": collectors[g.rng.Intn(len(collectors))],
		"plot":      fmt.Sprintf("p%d", 1+g.rng.Intn(g.NumPlots)),
	}
	// A sliver of records with gaps, like real survey data.
	if g.rng.Intn(20) == 0 {
		delete(row, "dbh")
	}
	if g.rng.Intn(25) == 0 {
		delete(row, "collector")
	}
	return row, nil
}

func taxonID(tx taxon) string {
	for i, t := range taxa {
		if t == tx {
			return fmt.Sprintf("t%d", i+1)
		}
	}
	return ""
}

// Rows generates n occurrence rows.
func (g *Generator) Rows(n int) edk.Rows {
	rows := make(edk.Rows, n)
	for i := range rows {
		rows[i], _ = g.Record()
	}
	return rows
}

// WriteCSV writes n generated rows as CSV, header first.
func (g *Generator) WriteCSV(w io.Writer, n int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "writing header")
	}
	record := make([]string, len(Columns))
	for i := 0; i < n; i++ {
		row, _ := g.Record()
		for j, col := range Columns {
			record[j] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
