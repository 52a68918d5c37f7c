package main

import (
	"testing"
)

func TestNewCommand(t *testing.T) {
	t.Parallel()

	cmd := newCommand()
	if cmd.Name != "goenet" {
		t.Errorf("Name = %q", cmd.Name)
	}

	want := map[string]bool{"listen": false, "connect": false, "version": false}
	for _, sub := range cmd.Commands {
		if _, ok := want[sub.Name]; !ok {
			t.Errorf("unexpected subcommand %q", sub.Name)
			continue
		}
		want[sub.Name] = true
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q missing", name)
		}
	}
}
