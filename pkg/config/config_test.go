package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sdb", "config.yml")); err != nil {
		t.Fatalf("default config file not created: %v", err)
	}
	if c.DisassembleFlavor != "" || len(c.Aliases) != 0 {
		t.Fatalf("default config is not empty: %#v", c)
	}
	if c.GetDisassembleCount() != DefaultDisassembleCount || c.GetMemoryReadBytes() != DefaultMemoryReadBytes || c.GetHistorySize() != DefaultHistorySize {
		t.Fatal("wrong defaults")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	n := 12
	conf := &Config{
		Aliases:           map[string][]string{"continue": {"go"}},
		DisassembleFlavor: "intel",
		DisassembleCount:  &n,
	}
	if err := SaveConfig(conf); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if c.DisassembleFlavor != "intel" || c.GetDisassembleCount() != 12 {
		t.Fatalf("unexpected config %#v", c)
	}
	if len(c.Aliases["continue"]) != 1 || c.Aliases["continue"][0] != "go" {
		t.Fatalf("unexpected aliases %v", c.Aliases)
	}
}

func TestLoadConfigDecodeError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	os.MkdirAll(filepath.Join(dir, "sdb"), 0700)
	os.WriteFile(filepath.Join(dir, "sdb", "config.yml"), []byte("aliases: [\n"), 0600)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("malformed config file was accepted")
	}
}
