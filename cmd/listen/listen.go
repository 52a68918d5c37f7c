// Package listen implements the listen command, which runs a host and pipes
// stdio through every peer that connects.
package listen

import (
	"context"
	"dominicbreuker/goenet/cmd/shared"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/entrypoint"
	"dominicbreuker/goenet/pkg/log"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

// GetCommand returns the CLI command for listen mode.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "listen",
		Usage:       "Listen for peers",
		Description: shared.GetBaseDescription(),
		ArgsUsage:   shared.GetArgsUsage(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 1 {
				return fmt.Errorf("must provide exactly one argument, got %d (%s)", args.Len(), strings.Join(args.Slice(), ", "))
			}

			proto, host, port, err := shared.ParseTransport(args.Get(0))
			if err != nil {
				return fmt.Errorf("parsing transport: %s", err)
			}

			cfg, err := shared.NewSession(cmd, proto, host, port)
			if err != nil {
				return err
			}

			if errs := config.Validate(cfg); len(errs) > 0 {
				log.ErrorMsg("Argument validation errors:\n")
				for _, err := range errs {
					log.ErrorMsg(" - %s\n", err)
				}
				return fmt.Errorf("exiting")
			}

			return entrypoint.Listen(ctx, cfg)
		},
		Flags: getFlags(),
	}
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags, shared.GetHostFlags()...)
	flags = append(flags, shared.GetListenFlags()...)

	return flags
}
