package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/outbox/cmd/app/commands"
	"github.com/allisson/outbox/internal/app"
	"github.com/allisson/outbox/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   commands.FormatText,
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getOutboxCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "drain",
			Usage: "Deliver every eligible outbox message once and exit",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				engine, err := container.Engine()
				if err != nil {
					return err
				}

				return commands.RunDrain(
					ctx,
					engine,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "send",
			Usage: "Append a message to the outbox",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "topic",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Destination topic",
				},
				&cli.StringFlag{
					Name:     "payload",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Message payload; JSON is stored as is, other text as a JSON string",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				producer, err := container.ProducerUseCase()
				if err != nil {
					return err
				}

				return commands.RunSend(
					ctx,
					producer,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("topic"),
					cmd.String("payload"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "stats",
			Usage: "Show the outbox backlog",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   0,
					Usage:   "Also list up to this many of the oldest pending messages",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				producer, err := container.ProducerUseCase()
				if err != nil {
					return err
				}

				return commands.RunStats(
					ctx,
					producer,
					commands.DefaultIO().Writer,
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
	}
}
