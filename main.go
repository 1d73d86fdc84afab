package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/picostack/gitadapter/adapter"
	"github.com/picostack/gitadapter/config"
	"github.com/picostack/gitadapter/logger"
	"github.com/picostack/gitadapter/service"
)

var version = "master"

var adapterFlags = []cli.Flag{
	cli.StringFlag{Name: "username", EnvVar: "GIT_USERNAME"},
	cli.StringFlag{Name: "token", EnvVar: "GIT_SERVICE_ACCESS_TOKEN"},
	cli.StringFlag{Name: "organization", EnvVar: "GIT_ORG"},
	cli.StringFlag{Name: "repository", EnvVar: "GIT_REPO"},
	cli.StringFlag{Name: "file", EnvVar: "GIT_FILE"},
	cli.StringFlag{Name: "api-url", EnvVar: "GIT_API_URL"},
	cli.BoolFlag{Name: "clone", EnvVar: "GIT_CLONE"},
	cli.StringFlag{Name: "clone-url", EnvVar: "GIT_CLONE_URL"},
	cli.StringFlag{Name: "branch", EnvVar: "GIT_BRANCH"},
	cli.BoolFlag{Name: "local", EnvVar: "GIT_LOCAL"},
	cli.StringFlag{Name: "directory", EnvVar: "GIT_LOCAL_DIRECTORY"},
	cli.BoolFlag{Name: "mute", EnvVar: "GIT_MUTE"},
	cli.BoolFlag{Name: "verbose", EnvVar: "GIT_VERBOSE"},
	cli.DurationFlag{Name: "poll-interval", EnvVar: "GIT_POLL_INTERVAL", Value: time.Minute},
	cli.BoolTFlag{Name: "poll", EnvVar: "GIT_POLL"},
	cli.StringFlag{Name: "vault-addr", EnvVar: "VAULT_ADDR"},
	cli.StringFlag{Name: "vault-token", EnvVar: "VAULT_TOKEN"},
	cli.StringFlag{Name: "vault-path", EnvVar: "VAULT_PATH", Value: "/secret"},
	cli.StringFlag{Name: "vault-secret", EnvVar: "VAULT_SECRET", Value: "gitadapter"},
	cli.StringFlag{Name: "vault-key", EnvVar: "VAULT_KEY", Value: service.TokenKey},
}

func main() {
	app := cli.NewApp()

	app.Name = "gitadapter"
	app.Usage = "Keeps a JSON config file in a git repository in sync with its consumers."
	app.UsageText = `gitadapter [flags] [command]`
	app.Version = version
	app.Description = `gitadapter fetches a JSON configuration file from a GitHub repository (or
a local.json in development), reports every change and keeps polling for more.`

	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "development", EnvVar: "DEVELOPMENT"},
		cli.BoolFlag{Name: "debug", EnvVar: "DEBUG"},
		cli.StringFlag{Name: "log-level", EnvVar: "LOG_LEVEL"},
	}

	app.Before = func(c *cli.Context) error {
		_, err := logger.Install(logger.Options{
			Development: c.Bool("development"),
			Debug:       c.Bool("debug"),
			Level:       c.String("log-level"),
		})
		return err
	}

	app.Commands = []cli.Command{
		{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "verify the connection, fetch the config and keep polling",
			Description: `Starts the adapter daemon. Every changed configuration is written to
stdout as a single JSON line. With --listen an HTTP control surface and the
metrics endpoint are served.`,
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "listen", EnvVar: "LISTEN_ADDR"},
			}, adapterFlags...),
			Action: func(c *cli.Context) error {
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()

				svc, err := initialise(ctx, c, params(c), printConfig)
				if err != nil {
					return errors.Wrap(err, "failed to initialise")
				}

				zap.L().Info("service initialised")

				errs := make(chan error, 1)
				go func() { errs <- svc.Start(ctx) }()

				s := make(chan os.Signal, 1)
				signal.Notify(s, os.Interrupt)

				select {
				case sig := <-s:
					zap.L().Info("shutting down", zap.String("signal", sig.String()))
					cancel()
					return <-errs
				case err = <-errs:
					return err
				}
			},
		},
		{
			Name:  "fetch",
			Usage: "fetch the config once and print it",
			Flags: adapterFlags,
			Action: func(c *cli.Context) error {
				a, err := oneShot(c)
				if err != nil {
					return err
				}
				data, err := a.FetchConfigFile(context.Background())
				if err != nil {
					return err
				}
				printConfig(data)
				return nil
			},
		},
		{
			Name:  "check",
			Usage: "verify the access token belongs to the configured user",
			Flags: adapterFlags,
			Action: func(c *cli.Context) error {
				a, err := oneShot(c)
				if err != nil {
					return err
				}
				return a.EstablishConnection(context.Background())
			},
		},
		{
			Name:  "print",
			Usage: "print the resolved connection details",
			Flags: adapterFlags,
			Action: func(c *cli.Context) error {
				a, err := oneShot(c)
				if err != nil {
					return err
				}
				a.PrintConnection()
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		zap.L().Fatal("exit", zap.Error(err))
	}
}

func params(c *cli.Context) adapter.Params {
	return adapter.Params{
		Username:     c.String("username"),
		Token:        c.String("token"),
		Organization: c.String("organization"),
		Repository:   c.String("repository"),
		FileName:     c.String("file"),
		BaseURL:      c.String("api-url"),
		Clone:        c.Bool("clone"),
		CloneURL:     c.String("clone-url"),
		Branch:       c.String("branch"),
		Local:        c.Bool("local"),
		Mute:         c.Bool("mute"),
		Verbose:      c.Bool("verbose"),
		PollInterval: c.Duration("poll-interval"),
		Poll:         c.BoolT("poll"),
		Development:  c.GlobalBool("development"),
	}
}

func initialise(ctx context.Context, c *cli.Context, p adapter.Params, onChange func(config.Config)) (*service.App, error) {
	return service.Initialise(ctx, service.Config{
		Adapter:      p,
		ListenAddr:   c.String("listen"),
		Directory:    c.String("directory"),
		VaultAddress: c.String("vault-addr"),
		VaultToken:   c.String("vault-token"),
		VaultPath:    c.String("vault-path"),
		VaultSecret:  c.String("vault-secret"),
		VaultKey:     c.String("vault-key"),
		OnChange:     onChange,
	})
}

// one-shot commands never arm the loop
func oneShot(c *cli.Context) (*adapter.Adapter, error) {
	p := params(c)
	p.Poll = false
	svc, err := initialise(context.Background(), c, p, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialise")
	}
	return svc.Adapter(), nil
}

func printConfig(data config.Config) {
	b, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("failed to encode configuration", zap.Error(err))
		return
	}
	fmt.Println(string(b))
}
