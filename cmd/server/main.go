package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// .env is optional; real environment variables win
	envErr := godotenv.Load()

	app := &cli.App{
		Name:  "autovpn",
		Usage: "AutoVPN installer and panel backend",
		Flags: serveFlags(),
		Action: func(ctx *cli.Context) error {
			return serve(ctx, envErr)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API (installer or server mode)",
				Flags: serveFlags(),
				Action: func(ctx *cli.Context) error {
					return serve(ctx, envErr)
				},
			},
			installCommand(),
			runsCommand(),
			panelCommand(),
			wgConfCommand(),
			{
				Name:   "genkey",
				Usage:  "Print a new WireGuard private and public key",
				Action: genKey,
			},
			{
				Name:      "hash-password",
				Usage:     "Print the bcrypt hash of a password",
				ArgsUsage: "<password>",
				Action:    hashPassword,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
