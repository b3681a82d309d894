package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"autovpn-backend/internal/client"
	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logstream"
	"autovpn-backend/internal/pkg/wgkeys"
	"autovpn-backend/internal/service"
)

func apiFlag(def string) cli.Flag {
	return &cli.StringFlag{
		Name:  "api",
		Usage: "backend base URL",
		Value: def,
	}
}

func loginFlags() []cli.Flag {
	return []cli.Flag{
		apiFlag("http://127.0.0.1:8080"),
		&cli.StringFlag{Name: "email", EnvVars: []string{"ADMIN_EMAIL"}, Required: true},
		&cli.StringFlag{Name: "password", EnvVars: []string{"ADMIN_PASSWORD"}, Required: true},
	}
}

func loggedIn(ctx *cli.Context) (*client.Client, error) {
	c, err := client.New(ctx.String("api"), nil)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx.Context, ctx.String("email"), ctx.String("password")); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Print(content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return err
	}
	fmt.Println("Wrote", path)
	return nil
}

func installCommand() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Run the install wizard flow against an installer backend",
		Flags: []cli.Flag{
			apiFlag("http://127.0.0.1:8080"),
			&cli.StringFlag{Name: "host", Usage: "target public IP", Required: true},
			&cli.StringFlag{Name: "user", Value: "ubuntu"},
			&cli.IntFlag{Name: "port", Value: 22},
			&cli.StringFlag{Name: "pem", Usage: "path to the private key file"},
			&cli.StringFlag{Name: "ssh-password", EnvVars: []string{"SSH_PASSWORD"}},
			&cli.StringFlag{Name: "wg-host", Usage: "public WireGuard host, defaults to --host"},
			&cli.IntFlag{Name: "wg-port", Value: 51820},
			&cli.StringFlag{Name: "jwt-secret", EnvVars: []string{"JWT_SECRET"}, Required: true},
			&cli.StringFlag{Name: "admin-email", EnvVars: []string{"ADMIN_EMAIL"}, Required: true},
			&cli.StringFlag{Name: "admin-password", EnvVars: []string{"ADMIN_PASSWORD"}, Required: true},
			&cli.StringFlag{Name: "timezone", Value: "Europe/Madrid"},
		},
		Action: func(ctx *cli.Context) error {
			target := model.SSHConfig{
				ElasticIP:   ctx.String("host"),
				User:        ctx.String("user"),
				SSHPort:     ctx.Int("port"),
				SSHPassword: ctx.String("ssh-password"),
			}
			if p := ctx.String("pem"); p != "" {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				target.PEM = string(data)
			}
			wgHost := ctx.String("wg-host")
			if wgHost == "" {
				wgHost = target.ElasticIP
			}

			c, err := client.New(ctx.String("api"), nil)
			if err != nil {
				return err
			}
			check, err := c.CheckSSH(ctx.Context, &target)
			if err != nil {
				return fmt.Errorf("ssh check: %w", err)
			}
			fmt.Println("SSH OK:", check.Stdout)

			err = c.WriteConfig(ctx.Context, &model.InstallConfig{
				SSH: target,
				Vars: model.StackVars{
					WGPublicHost:  wgHost,
					WGPort:        ctx.Int("wg-port"),
					JWTSecret:     ctx.String("jwt-secret"),
					Timezone:      ctx.String("timezone"),
					AdminEmail:    ctx.String("admin-email"),
					AdminPassword: ctx.String("admin-password"),
				},
			})
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			runID, err := c.RunInstall(ctx.Context, &model.RunRequest{SSH: target})
			if err != nil {
				return fmt.Errorf("start run: %w", err)
			}
			fmt.Println("Run", runID)

			url, err := c.StreamLogs(ctx.Context, runID, func(ev logstream.Event) {
				fmt.Println(ev.PlainLine())
			})
			if err != nil {
				return err
			}
			fmt.Println("Panel ready at", url)
			return nil
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List install runs on an installer backend",
		Flags: []cli.Flag{apiFlag("http://127.0.0.1:8080")},
		Action: func(ctx *cli.Context) error {
			c, err := client.New(ctx.String("api"), nil)
			if err != nil {
				return err
			}
			runs, err := c.ListRuns(ctx.Context)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %-9s  %s  %s\n", r.RunID, r.Status, r.Target, r.CreatedAt)
			}
			return nil
		},
	}
}

func panelCommand() *cli.Command {
	return &cli.Command{
		Name:  "panel",
		Usage: "Talk to a running panel backend",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the WireGuard server",
				Flags: loginFlags(),
				Action: func(ctx *cli.Context) error {
					c, err := loggedIn(ctx)
					if err != nil {
						return err
					}
					st, err := c.StartWireGuard(ctx.Context)
					if err != nil {
						return err
					}
					fmt.Printf("%s: %s\n", st.Name, st.Status)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Show WireGuard, peer and host status",
				Flags: loginFlags(),
				Action: func(ctx *cli.Context) error {
					c, err := loggedIn(ctx)
					if err != nil {
						return err
					}
					st, err := c.Status(ctx.Context)
					if err != nil {
						return err
					}
					fmt.Printf("status: %s\npeers: %d\n", st.Status, st.PeerCount)
					if st.WireGuard != nil {
						fmt.Printf("wireguard: %s (%s)\n", st.WireGuard.Status, st.WireGuard.Name)
					}
					if st.Host != nil {
						fmt.Printf("cpu: %.1f%%\n", st.Host.CPUPercent)
					}
					return nil
				},
			},
			{
				Name:  "download",
				Usage: "Create a peer and save its client config",
				Flags: append(loginFlags(),
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, - for stdout"},
				),
				Action: func(ctx *cli.Context) error {
					c, err := loggedIn(ctx)
					if err != nil {
						return err
					}
					conf, err := c.DownloadPeerConfig(ctx.Context, ctx.String("name"))
					if err != nil {
						return err
					}
					out := ctx.String("out")
					if out == "" {
						out = "AutoVPN-" + ctx.String("name") + ".conf"
					}
					return writeOutput(out, conf)
				},
			},
		},
	}
}

func wgConfCommand() *cli.Command {
	return &cli.Command{
		Name:  "wg-conf",
		Usage: "Generate a client key locally and register it on a WireGuard server",
		Flags: append(loginFlags(),
			&cli.StringFlag{Name: "peer", Required: true},
			&cli.StringFlag{Name: "server-hint", Required: true},
			&cli.StringFlag{Name: "ssh-user"},
			&cli.StringFlag{Name: "ssh-password", EnvVars: []string{"SSH_PASSWORD"}},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}},
			&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute},
		),
		Action: func(ctx *cli.Context) error {
			c, err := loggedIn(ctx)
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
			defer cancel()
			conf, err := c.GeneratePeerConfig(reqCtx, ctx.String("peer"), ctx.String("server-hint"),
				ctx.String("ssh-user"), ctx.String("ssh-password"))
			if err != nil {
				return err
			}
			return writeOutput(ctx.String("out"), conf)
		},
	}
}

func genKey(ctx *cli.Context) error {
	kp, err := wgkeys.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Println("private:", kp.PrivateKey)
	fmt.Println("public: ", kp.PublicKey)
	return nil
}

func hashPassword(ctx *cli.Context) error {
	pw := ctx.Args().First()
	if pw == "" {
		return cli.Exit("password argument is required", 2)
	}
	hash, err := service.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
