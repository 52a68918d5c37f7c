// Package version implements the version command.
package version

import (
	"context"
	"dominicbreuker/goenet/pkg/handler"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
)

// Version is set at build time with -ldflags "-X ...version.Version=...".
var Version = "unknown"

const shortFlag = "short"

// GetCommand returns the CLI command printing the program and session
// protocol versions.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Program and protocol version",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  shortFlag,
				Usage: "Print the program version only",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return printVersion(cmd.Root().Writer, Version, cmd.Bool(shortFlag))
		},
	}
}

func printVersion(w io.Writer, version string, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, version)
		return err
	}
	_, err := fmt.Fprintf(w, "goenet %s (session protocol %s)\n", version, handler.ProtocolVersion)
	return err
}
