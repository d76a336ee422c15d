package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	var in, out, errs bytes.Buffer
	rc := NewRootCommand(&in, &out, &errs)
	for _, name := range []string{"run", "hierarchy", "plugins", "fake", "kafka"} {
		cmd, _, err := rc.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s not registered: %v", name, err)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	var in, out, errs bytes.Buffer
	rc := NewRunCommand(&in, &out, &errs)
	for _, name := range []string{"pipeline", "data-dir", "store", "concurrency", "persist-partial", "max-failures"} {
		if rc.Flags().Lookup(name) == nil {
			t.Fatalf("run command missing flag %s", name)
		}
	}
}

func TestPluginsCommand(t *testing.T) {
	var in, out, errs bytes.Buffer
	rc := NewPluginsCommand(&in, &out, &errs)
	if err := rc.RunE(rc, nil); err != nil {
		t.Fatalf("listing plugins: %v", err)
	}
	for _, want := range []string{"loader:", "occurrences", "field_stats", "json_file"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("plugin listing missing %q:\n%s", want, out.String())
		}
	}
}
