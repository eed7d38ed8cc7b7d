package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandListsRun(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "run") {
		t.Fatalf("help output missing run command:\n%s", out.String())
	}
}

func TestRunRejectsMissingConfigFile(t *testing.T) {
	if err := runDaemon("/nonexistent/gavel.toml"); err == nil {
		t.Fatal("expected error for missing config path")
	}
}
