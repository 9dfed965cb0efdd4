package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// main 是 walletbridge 命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "walletbridge",
		Usage: "connect a wallet and invoke smart contracts over a REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "walletbridge API address used by client commands",
				EnvVars: []string{"WALLETBRIDGE_SERVER"},
				Value:   "http://127.0.0.1:8080",
			},
		},
		Commands: []*cli.Command{
			serveCmd, chainsCmd, connectCmd, accountsCmd, callCmd, invocationsCmd,
		},
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "walletbridge: %v\n", err)
		os.Exit(1)
	}
}
