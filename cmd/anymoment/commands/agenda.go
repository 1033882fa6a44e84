package commands

import (
	"context"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sineways/anymoment-cli/internal/api"
)

func agendaCommand() *cli.Command {
	timestampConfig := cli.TimestampConfig{Layouts: []string{time.RFC3339}}
	return &cli.Command{
		Name:  "agenda",
		Usage: "agenda window and search",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "events and instances within a time window (defaults to the next 7 days)",
				Flags: []cli.Flag{
					&cli.TimestampFlag{Name: "start", Aliases: []string{"s"}, Usage: "window start (RFC 3339)", Config: timestampConfig},
					&cli.TimestampFlag{Name: "end", Aliases: []string{"e"}, Usage: "window end (RFC 3339)", Config: timestampConfig},
					&cli.StringFlag{Name: "calendar", Aliases: []string{"C"}, Usage: "restrict to calendar ID(s), comma-separated"},
					&cli.BoolFlag{Name: "no-cache", Usage: "bypass the server's instance cache"},
					&cli.BoolFlag{Name: "webhooks", Usage: "include webhooks in event payloads"},
				},
				Action: agendaListAction,
			},
			{
				Name:      "search",
				Usage:     "fuzzy search over events",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.TimestampFlag{Name: "start", Aliases: []string{"s"}, Usage: "earliest instance time (RFC 3339)", Config: timestampConfig},
					&cli.TimestampFlag{Name: "end", Aliases: []string{"e"}, Usage: "latest instance time (RFC 3339)", Config: timestampConfig},
					&cli.StringFlag{Name: "calendar", Aliases: []string{"C"}, Usage: "restrict to calendar ID(s), comma-separated"},
					activeFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "max results (1-100)", Value: 50},
					&cli.IntFlag{Name: "offset", Usage: "skip this many results"},
					&cli.BoolFlag{Name: "no-instances", Usage: "omit instances from results"},
				},
				Action: agendaSearchAction,
			},
		},
	}
}

func splitCalendarIDs(value string) []string {
	if value == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(value, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func agendaListAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	start := cmd.Timestamp("start")
	end := cmd.Timestamp("end")
	if start.IsZero() {
		start = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if end.IsZero() {
		end = start.Add(7 * 24 * time.Hour)
	}

	items, err := application.Client().Agenda(ctx, start, end, api.AgendaOptions{
		CalendarIDs:     splitCalendarIDs(cmd.String("calendar")),
		UseCache:        !cmd.Bool("no-cache"),
		IncludeWebhooks: cmd.Bool("webhooks"),
	})
	if err != nil {
		return err
	}
	return printJSON(items)
}

func agendaSearchAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	query, err := requireArg(cmd, 0, "query")
	if err != nil {
		return err
	}

	results, err := application.Client().SearchEvents(ctx, strings.TrimSpace(query), api.SearchOptions{
		Start:            cmd.Timestamp("start"),
		End:              cmd.Timestamp("end"),
		CalendarIDs:      splitCalendarIDs(cmd.String("calendar")),
		IsActive:         boolFlagPtr(cmd, "active"),
		Limit:            cmd.Int("limit"),
		Offset:           cmd.Int("offset"),
		IncludeInstances: !cmd.Bool("no-instances"),
	})
	if err != nil {
		return err
	}
	return printJSON(results)
}
