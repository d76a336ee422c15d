package runner

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"github.com/ecodata/edk"
	"github.com/ecodata/edk/boltdb"
	"github.com/ecodata/edk/builtin"
	"github.com/ecodata/edk/csv"
	"github.com/ecodata/edk/leveldb"
	"github.com/ecodata/edk/s3"
	"github.com/ecodata/edk/termstat"
)

// Main holds the execution state for a full pipeline run.
type Main struct {
	Pipeline       string `help:"Path to the pipeline YAML definition."`
	DataDir        string `help:"Directory containing CSV source tables."`
	Store          string `help:"Path to the widgets-data bolt file."`
	S3Bucket       string `help:"Read source tables from this S3 bucket instead of data-dir."`
	S3Prefix       string `help:"Key prefix to restrict the S3 tables to."`
	S3Region       string `help:"AWS region of the S3 bucket."`
	Concurrency    int    `help:"Number of concurrent entity workers. 0 means NumCPU."`
	PersistPartial bool   `help:"Persist the completed prefix of failed entities."`
	MaxFailures    int    `help:"How many failure causes to keep in the summary."`
	Verbose        bool   `help:"Enable debug logging and terminal stats."`
}

// NewMain returns a Main with defaults.
func NewMain() *Main {
	return &Main{
		Pipeline:    "pipeline.yaml",
		DataDir:     ".",
		Store:       "widgets.db",
		MaxFailures: 10,
	}
}

// Run executes the configured pipeline once and prints the run summary.
func (m *Main) Run() error {
	cfg, err := m.readConfig()
	if err != nil {
		return err
	}
	reg := edk.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return errors.Wrap(err, "registering builtin plugins")
	}
	tables, err := m.tables()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	go func() {
		<-signals
		log.Println("interrupted, skipping remaining entities")
		cancel()
	}()

	store, err := boltdb.NewStore(m.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	orch := edk.NewOrchestrator(reg, store)
	orch.Tables = tables
	orch.Concurrency = m.Concurrency
	orch.PersistPartial = m.PersistPartial
	orch.MaxFailures = m.MaxFailures
	orch.Log = edk.StdLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)}
	if m.Verbose {
		orch.Log = edk.VerboseLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)}
		orch.Stats = termstat.NewCollector(os.Stderr)
	}

	var entities []edk.Entity
	if cfg.Hierarchy != nil {
		tree, err := buildTree(ctx, cfg.Hierarchy, tables)
		if err != nil {
			return err
		}
		orch.Tree = tree
		entities = edk.EntitiesFromTree(tree)
	}
	if src := cfg.Group.Source; src != nil {
		rows, err := tables.Load(ctx, src.Table)
		if err != nil {
			return errors.Wrap(err, "loading group source table")
		}
		entities, err = edk.EntitiesFromRows(rows, src.IDColumn, src.LabelColumn)
		if err != nil {
			return errors.Wrap(err, "listing group entities")
		}
	}
	if entities == nil {
		return errors.New("config needs a hierarchy or a group source to enumerate entities")
	}

	summary, err := orch.Run(ctx, cfg.EngineGroup(), entities)
	if err != nil {
		return err
	}
	log.Println(summary)
	for _, f := range summary.Failures {
		log.Printf("failure: %v", f)
	}
	return nil
}

// tables builds the memoized table loader: CSV files from a local
// directory, or the objects under an S3 prefix when a bucket is set.
func (m *Main) tables() (*edk.TableCache, error) {
	if m.S3Bucket == "" {
		return edk.NewTableCache(csv.NewSource(m.DataDir)), nil
	}
	opts := []s3.SrcOption{s3.OptSrcBucket(m.S3Bucket)}
	if m.S3Prefix != "" {
		opts = append(opts, s3.OptSrcPrefix(m.S3Prefix))
	}
	if m.S3Region != "" {
		opts = append(opts, s3.OptSrcRegion(m.S3Region))
	}
	src, err := s3.NewSource(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "opening s3 source")
	}
	return edk.NewTableCache(csv.NewRawTableSource(src)), nil
}

func (m *Main) readConfig() (*PipelineConfig, error) {
	data, err := ioutil.ReadFile(m.Pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "reading pipeline config")
	}
	return ParseConfig(data)
}

func buildTree(ctx context.Context, hc *HierarchyConfig, tables edk.TableLoader) (*edk.Tree, error) {
	if hc.Table == "" {
		return nil, errors.New("hierarchy has no source table")
	}
	builder, err := hc.Builder()
	if err != nil {
		return nil, err
	}
	rows, err := tables.Load(ctx, hc.Table)
	if err != nil {
		return nil, errors.Wrap(err, "loading hierarchy table")
	}
	tree, err := builder.Build(rows)
	return tree, errors.Wrap(err, "building hierarchy")
}

// TreeMain holds the execution state for a standalone hierarchy build.
type TreeMain struct {
	Pipeline string `help:"Path to the pipeline YAML definition."`
	DataDir  string `help:"Directory containing CSV source tables."`
	TreeDir  string `help:"Directory for the leveldb tree store."`
}

// NewTreeMain returns a TreeMain with defaults.
func NewTreeMain() *TreeMain {
	return &TreeMain{
		Pipeline: "pipeline.yaml",
		DataDir:  ".",
		TreeDir:  "tree.ldb",
	}
}

// Run builds the hierarchy tree from its source table and persists it.
func (m *TreeMain) Run() error {
	data, err := ioutil.ReadFile(m.Pipeline)
	if err != nil {
		return errors.Wrap(err, "reading pipeline config")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return err
	}
	if cfg.Hierarchy == nil {
		return errors.New("config has no hierarchy section")
	}
	tables := edk.NewTableCache(csv.NewSource(m.DataDir))
	tree, err := buildTree(context.Background(), cfg.Hierarchy, tables)
	if err != nil {
		return err
	}
	store, err := leveldb.NewStore(m.TreeDir)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.PutTree(tree); err != nil {
		return err
	}
	log.Printf("built %d nodes over %d levels", tree.Len(), len(tree.Levels()))
	return nil
}
