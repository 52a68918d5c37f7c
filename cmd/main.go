// Command goenet pipes stdio between two hosts over a reliable channel
// stream on UDP or WebSocket datagrams.
package main

import (
	"context"
	"dominicbreuker/goenet/cmd/connect"
	"dominicbreuker/goenet/cmd/listen"
	"dominicbreuker/goenet/cmd/shared"
	"dominicbreuker/goenet/cmd/version"
	"dominicbreuker/goenet/pkg/log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := shared.SetupSignalHandling(cancel)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.ErrorMsg("%s\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "goenet",
		Usage: "pipe stdio over reliable UDP channels",
		Commands: []*cli.Command{
			listen.GetCommand(),
			connect.GetCommand(),
			version.GetCommand(),
		},
	}
}
