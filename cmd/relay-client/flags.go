package main

import "github.com/urfave/cli/v2"

var (
	serverFlag = &cli.StringFlag{
		Name:    "server",
		Usage:   "Relay base URL",
		Value:   "http://localhost:3000",
		EnvVars: []string{"RELAY_SERVER_URL"},
	}

	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"LOG_LEVEL"},
	}

	outDirFlag = &cli.StringFlag{
		Name:  "out",
		Value: ".",
		Usage: "Directory for received files",
	}
)
