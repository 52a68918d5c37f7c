// Package shared provides common CLI flag definitions and utility functions
// used across goenet's command-line interface.
package shared

import (
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

const categoryCommon = "common"

// VerboseFlag is the name of the flag to enable verbose error logging.
const VerboseFlag = "verbose"

// TimeoutFlag is the name of the flag to specify operation timeout in milliseconds.
const TimeoutFlag = "timeout"

// LogFileFlag is the name of the flag to specify a datagram log file.
const LogFileFlag = "log"

// ConfigFlag is the name of the flag to specify a YAML file with host options.
const ConfigFlag = "config"

// KeyFlag is the name of the flag to specify the secret sessions are encrypted with.
const KeyFlag = "key"

// GetBaseDescription returns the base description text for transport
// specifications used in CLI commands.
func GetBaseDescription() string {
	return strings.Join([]string{
		"Specify transport like this: udp://127.0.0.1:123 (supports udp|ws)",
		"You can omit the host when listening to bind to all interfaces.",
	}, "\n")
}

// GetArgsUsage returns the arguments usage string for CLI commands.
func GetArgsUsage() string {
	return strings.Join([]string{
		"transport",
	}, " ")
}

// GetCommonFlags returns the common CLI flags used by listen and connect.
func GetCommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     VerboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Verbose error logging",
			Category: categoryCommon,
			Value:    false,
			Required: false,
		},
		&cli.IntFlag{
			Name:     TimeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "Operation timeout in milliseconds (mux control operations, waiting for a peer slot)",
			Category: categoryCommon,
			Value:    10000, // 10 seconds default
			Required: false,
		},
		&cli.StringFlag{
			Name:     LogFileFlag,
			Aliases:  []string{"l"},
			Usage:    "Log file receiving a hex dump of every datagram",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
		&cli.StringFlag{
			Name:     KeyFlag,
			Aliases:  []string{"k"},
			Usage:    "Secret shared with the other end, encrypts all sessions",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
		&cli.StringFlag{
			Name:     ConfigFlag,
			Aliases:  []string{"c"},
			Usage:    "YAML file with host options, flags override it",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
	}
}

const categoryHost = "host"

// ChannelFlag is the name of the flag selecting the channel stdio is piped on.
const ChannelFlag = "channel"

// ChannelsFlag is the name of the flag setting the channels per peer.
const ChannelsFlag = "channels"

// CompressFlag is the name of the flag to enable frame compression.
const CompressFlag = "compress"

// IntervalFlag is the name of the flag setting the service interval.
const IntervalFlag = "interval"

// DownFlag is the name of the flag limiting incoming bandwidth.
const DownFlag = "down"

// UpFlag is the name of the flag limiting outgoing bandwidth.
const UpFlag = "up"

// GetHostFlags returns the CLI flags tuning the host.
func GetHostFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:     ChannelFlag,
			Usage:    "Channel to pipe stdio on",
			Category: categoryHost,
			Value:    0,
			Required: false,
		},
		&cli.IntFlag{
			Name:     ChannelsFlag,
			Usage:    "Channels per peer",
			Category: categoryHost,
			Value:    2,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     CompressFlag,
			Aliases:  []string{"z"},
			Usage:    "Compress frames",
			Category: categoryHost,
			Value:    false,
			Required: false,
		},
		&cli.DurationFlag{
			Name:     IntervalFlag,
			Usage:    "Service interval",
			Category: categoryHost,
			Value:    10 * time.Millisecond,
			Required: false,
		},
		&cli.IntFlag{
			Name:     DownFlag,
			Usage:    "Incoming bandwidth limit in bytes per second, 0 for unlimited",
			Category: categoryHost,
			Value:    0,
			Required: false,
		},
		&cli.IntFlag{
			Name:     UpFlag,
			Usage:    "Outgoing bandwidth limit in bytes per second, 0 for unlimited",
			Category: categoryHost,
			Value:    0,
			Required: false,
		},
	}
}

// GetConnectFlags returns the CLI flags specific to connect mode.
// Currently returns an empty slice.
func GetConnectFlags() []cli.Flag {
	return []cli.Flag{}
}

const categoryListen = "listen"

// PeersFlag is the name of the flag limiting concurrently handled peers.
const PeersFlag = "peers"

// GetListenFlags returns the CLI flags specific to listen mode.
func GetListenFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:     PeersFlag,
			Aliases:  []string{"p"},
			Usage:    "Peers handled at once, others wait for a slot until the timeout",
			Category: categoryListen,
			Value:    16,
			Required: false,
		},
	}
}
