package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"f"},
		Usage:   "Path to a YAML or TOML configuration file",
		EnvVars: []string{"BASEFAIR_CONFIG"},
	}
	ListenFlag = &cli.StringFlag{
		Name:    "listen",
		Usage:   "Address serving the websocket feed, overrides watch.listen",
		EnvVars: []string{"GAMEWATCH_LISTEN"},
	}
	IntervalFlag = &cli.DurationFlag{
		Name:    "interval",
		Usage:   "Poll interval, overrides watch.interval",
		Value:   4 * time.Second,
		EnvVars: []string{"GAMEWATCH_INTERVAL"},
	}
	FromBlockFlag = &cli.Uint64Flag{
		Name:    "from-block",
		Usage:   "First block to scan; 0 starts at the chain head",
		EnvVars: []string{"GAMEWATCH_FROM_BLOCK"},
	}
)

var Flags = []cli.Flag{
	ConfigFlag,
	ListenFlag,
	IntervalFlag,
	FromBlockFlag,
}
