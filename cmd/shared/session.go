package shared

import (
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/log"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// NewSession builds the session options from a parsed transport and the
// flags of cmd. Host options come from the --config file if given; host
// flags set on the command line override them.
func NewSession(cmd *cli.Command, proto config.Protocol, host string, port int) (*config.Session, error) {
	hostCfg := &config.Host{}
	if path := cmd.String(ConfigFlag); path != "" {
		var err error
		hostCfg, err = config.LoadHost(path)
		if err != nil {
			return nil, fmt.Errorf("loading host options: %w", err)
		}
	}

	override := func(name string, unset bool) bool {
		return cmd.IsSet(name) || unset
	}
	if override(CompressFlag, !hostCfg.Compress) {
		hostCfg.Compress = cmd.Bool(CompressFlag)
	}
	if override(IntervalFlag, hostCfg.Interval == 0) {
		hostCfg.Interval = cmd.Duration(IntervalFlag)
	}
	if override(DownFlag, hostCfg.DownstreamBandwidthLimit == 0) {
		hostCfg.DownstreamBandwidthLimit = uint32(cmd.Int(DownFlag))
	}
	if override(KeyFlag, hostCfg.Key == "") {
		hostCfg.Key = cmd.String(KeyFlag)
	}
	if override(UpFlag, hostCfg.UpstreamBandwidthLimit == 0) {
		hostCfg.UpstreamBandwidthLimit = uint32(cmd.Int(UpFlag))
	}

	channels := int(cmd.Int(ChannelsFlag))
	maxChannels := hostCfg.MaxChannels
	if maxChannels == 0 {
		maxChannels = config.DefaultMaxChannels
	}
	if channels > maxChannels {
		hostCfg.MaxChannels = channels
	}

	verbose := cmd.Bool(VerboseFlag)
	return &config.Session{
		Transport: config.Transport{
			Protocol: proto,
			Host:     host,
			Port:     port,
		},
		Channel:  int(cmd.Int(ChannelFlag)),
		Channels: channels,
		Peers:    int(cmd.Int(PeersFlag)),
		Timeout:  time.Duration(cmd.Int(TimeoutFlag)) * time.Millisecond,
		LogFile:  cmd.String(LogFileFlag),
		Verbose:  verbose,
		Host:     hostCfg,
		Logger:   log.NewLogger(verbose || hostCfg.Verbose),
	}, nil
}
