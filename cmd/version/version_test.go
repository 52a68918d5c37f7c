package version

import (
	"bytes"
	"context"
	"dominicbreuker/goenet/pkg/handler"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestGetCommand(t *testing.T) {
	t.Parallel()

	cmd := GetCommand()
	if cmd.Name != "version" || cmd.Usage == "" || cmd.Action == nil {
		t.Errorf("GetCommand() = %+v", cmd)
	}
}

func TestPrintVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version string
		short   bool
		want    string
	}{
		{"default", "unknown", false, "goenet unknown (session protocol " + handler.ProtocolVersion + ")\n"},
		{"release", "1.2.3", false, "goenet 1.2.3 (session protocol " + handler.ProtocolVersion + ")\n"},
		{"short", "1.2.3", true, "1.2.3\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := printVersion(&buf, tc.version, tc.short); err != nil {
				t.Fatalf("printVersion() error = %v", err)
			}
			if buf.String() != tc.want {
				t.Errorf("printVersion() = %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestVersionCommand_Run(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	root := &cli.Command{
		Name:     "goenet",
		Writer:   &buf,
		Commands: []*cli.Command{GetCommand()},
	}
	if err := root.Run(context.Background(), []string{"goenet", "version", "--short"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if buf.String() != Version+"\n" {
		t.Errorf("output = %q, want %q", buf.String(), Version+"\n")
	}
}
