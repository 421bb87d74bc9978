package cli

import (
	"testing"
)

func TestCommandTree(t *testing.T) {
	want := map[string]bool{"generate": false, "convert": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestGenerateRequiresInput(t *testing.T) {
	if err := runGenerate(generateCmd, nil); err == nil {
		t.Error("generate without --input should fail")
	}
}
