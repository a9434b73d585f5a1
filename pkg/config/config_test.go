package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/pflag"
)

func flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.String("config", "", "config file")
	f.String("input", "data/survey.csv", "input CSV")
	f.Int("port", 8080, "port")
	f.Bool("web", false, "web mode")
	f.String("merge", "first", "merge policy")
	return f
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.Fields.ID != "UNI" || cfg.Fields.NextPrefix != "nextUNI" {
		t.Errorf("Expected default fields, got %+v", cfg.Fields)
	}
	if cfg.Fields.Rename["Major"] != "major" {
		t.Errorf("Expected Major renamed to major, got %q", cfg.Fields.Rename["Major"])
	}
	if cfg.Layout.LinkDistance != 250 || cfg.Layout.ChargeStrength != -600 {
		t.Errorf("Expected layout defaults, got %+v", cfg.Layout)
	}
	if cfg.Layout.Seed != cfg.Seed {
		t.Errorf("Expected layout seed to follow seed %d, got %d", cfg.Seed, cfg.Layout.Seed)
	}
	if !cfg.OpenBrowser {
		t.Error("Expected open to default to true")
	}
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	toml := `
port = 7000
merge = "union"
input = "from-file.csv"

[layout]
node_radius = 12
seed = 99

[fields]
id = "Email"
`
	if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FORWARD_CHAIN_PORT", "7500")
	t.Setenv("FORWARD_CHAIN_LAYOUT__LINK_DISTANCE", "90")

	f := flags()
	if err := f.Parse([]string{"--input", "from-flag.csv"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Input != "from-flag.csv" {
		t.Errorf("Expected flag to win for input, got %q", cfg.Input)
	}
	if cfg.Port != 7500 {
		t.Errorf("Expected env to win for port, got %d", cfg.Port)
	}
	if cfg.Merge != "union" {
		t.Errorf("Expected file value for merge, got %q", cfg.Merge)
	}
	if cfg.Layout.NodeRadius != 12 || cfg.Layout.LinkDistance != 90 {
		t.Errorf("Expected node radius 12 and link distance 90, got %g and %g",
			cfg.Layout.NodeRadius, cfg.Layout.LinkDistance)
	}
	if cfg.Layout.ChargeStrength != -600 {
		t.Errorf("Expected untouched layout defaults to survive, got %g", cfg.Layout.ChargeStrength)
	}
	if cfg.Layout.Seed != 99 {
		t.Errorf("Expected explicit layout seed 99, got %d", cfg.Layout.Seed)
	}
	if cfg.Fields.ID != "Email" || cfg.Fields.Group != "Group" {
		t.Errorf("Expected id overridden and group kept, got %+v", cfg.Fields)
	}
}

func TestLoadConfigFlag(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "other.toml")
	if err := os.WriteFile(path, []byte("web = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := flags()
	if err := f.Parse([]string{"--config", path}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.WebMode {
		t.Error("Expected web mode from the named config file")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	f := flags()
	if err := f.Parse([]string{"--config", filepath.Join(dir, "missing.toml")}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(f); err == nil {
		t.Error("Expected an error for a missing config file named on the command line")
	}

	if err := os.WriteFile(DefaultFile, []byte("port = \"not closed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(nil); err == nil {
		t.Errorf("Expected an error for a malformed %s", DefaultFile)
	}
}

func TestFieldsRecords(t *testing.T) {
	f := Fields{ID: "UNI", Next: []string{"next"}, Lists: []string{"Major"}}
	rf := f.Records()
	if rf.ID != "UNI" || !slices.Equal(rf.Next, []string{"next"}) {
		t.Errorf("Expected fields carried over, got %+v", rf)
	}
}
