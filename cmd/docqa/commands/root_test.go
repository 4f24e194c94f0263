package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	want := []string{"serve", "ask", "ingest", "docs", "version"}
	for _, name := range want {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}

func TestVersionCmd_Output(t *testing.T) {
	t.Parallel()
	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "docqa dev") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestIngestCmd_RequiresSource(t *testing.T) {
	t.Parallel()
	cmd := NewIngestCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "at least one file or --url") {
		t.Errorf("want missing source error, got %v", err)
	}
}
