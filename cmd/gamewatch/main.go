package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s", Version, GitCommit)
	app.Name = "gamewatch"
	app.Usage = "Announce new FlipMatch games and keep creator caches fresh"
	app.Description = "Polls GameCreated events on Base, records each new game in its creator's cache entry and pushes a notification to websocket and redis subscribers"
	app.Flags = Flags
	app.Action = Main

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}
