package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sineways/anymoment-cli/internal/api"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "event management",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list events",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "calendar", Aliases: []string{"C"}, Usage: "restrict to a calendar ID"},
					activeFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of results"},
					&cli.IntFlag{Name: "offset", Usage: "number of results to skip"},
					&cli.BoolFlag{Name: "minimal", Usage: "reduced payload per event"},
				},
				Action: eventsListAction,
			},
			{
				Name:      "get",
				Usage:     "show one event",
				ArgsUsage: "<event-id>",
				Action:    eventsGetAction,
			},
			{
				Name:      "create",
				Usage:     "create an event from natural-language text",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "event name (extracted from text if omitted)"},
					&cli.StringFlag{Name: "description", Usage: "event description"},
					&cli.StringFlag{Name: "timezone", Aliases: []string{"z"}, Usage: "event timezone (defaults to config)"},
					&cli.StringFlag{Name: "calendar", Aliases: []string{"C"}, Usage: "calendar ID (defaults to config)"},
					&cli.StringFlag{Name: "model", Usage: "parsing tier: high, low, mega", Value: "high"},
				},
				Action: eventsCreateAction,
			},
			{
				Name:      "update",
				Usage:     "update an event",
				ArgsUsage: "<event-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "event name"},
					&cli.StringFlag{Name: "description", Usage: "event description"},
				},
				Action: eventsUpdateAction,
			},
			{
				Name:      "delete",
				Usage:     "delete an event",
				ArgsUsage: "<event-id>",
				Action:    eventsDeleteAction,
			},
			{
				Name:      "toggle",
				Usage:     "flip an event's active status",
				ArgsUsage: "<event-id>",
				Action:    eventsToggleAction,
			},
			{
				Name:      "instances",
				Usage:     "list occurrences of an event",
				ArgsUsage: "<event-id>",
				Flags: []cli.Flag{
					&cli.TimestampFlag{Name: "from", Usage: "range start (RFC 3339)", Config: cli.TimestampConfig{Layouts: []string{time.RFC3339}}},
					&cli.TimestampFlag{Name: "to", Usage: "range end (RFC 3339)", Config: cli.TimestampConfig{Layouts: []string{time.RFC3339}}},
					&cli.BoolFlag{Name: "optimized", Usage: "ask the server for the optimized expansion"},
				},
				Action: eventsInstancesAction,
			},
			{
				Name:      "next",
				Usage:     "show the next occurrence of an event",
				ArgsUsage: "<event-id>",
				Action:    eventsNextAction,
			},
		},
	}
}

func eventsListAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	events, err := application.Client().ListEvents(ctx, api.EventListFilter{
		CalendarID: cmd.String("calendar"),
		ListFilter: api.ListFilter{
			IsActive: boolFlagPtr(cmd, "active"),
			Limit:    cmd.Int("limit"),
			Offset:   cmd.Int("offset"),
		},
		Minimal: cmd.Bool("minimal"),
	})
	if err != nil {
		return err
	}
	return printJSON(events)
}

func eventsGetAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "event-id")
	if err != nil {
		return err
	}

	event, err := application.Client().GetEvent(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(event)
}

func eventsCreateAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	text, err := requireArg(cmd, 0, "text")
	if err != nil {
		return err
	}

	cfg := application.Config()
	timezone := cmd.String("timezone")
	if timezone == "" {
		timezone = cfg.Defaults.Timezone
	}
	calendarID := cmd.String("calendar")
	if calendarID == "" {
		calendarID = cfg.Defaults.CalendarID
	}

	event, err := application.Client().CreateEventFromText(ctx, api.CreateEventRequest{
		RecurrenceText: text,
		Name:           cmd.String("name"),
		Description:    cmd.String("description"),
		Timezone:       timezone,
		CalendarID:     calendarID,
		Model:          cmd.String("model"),
	})
	if err != nil {
		return err
	}
	return printJSON(event)
}

func eventsUpdateAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "event-id")
	if err != nil {
		return err
	}

	event, err := application.Client().UpdateEvent(ctx, id, api.UpdateEventRequest{
		Name:        stringFlagPtr(cmd, "name"),
		Description: stringFlagPtr(cmd, "description"),
	})
	if err != nil {
		return err
	}
	return printJSON(event)
}

func eventsDeleteAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "event-id")
	if err != nil {
		return err
	}

	if err := application.Client().DeleteEvent(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted event %s\n", id)
	return nil
}

func eventsToggleAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "event-id")
	if err != nil {
		return err
	}

	event, err := application.Client().ToggleEvent(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(event)
}

func eventsInstancesAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "event-id")
	if err != nil {
		return err
	}

	instances, err := application.Client().EventInstances(ctx, id, api.InstanceRange{
		From:      cmd.Timestamp("from"),
		To:        cmd.Timestamp("to"),
		Optimized: cmd.Bool("optimized"),
	})
	if err != nil {
		return err
	}
	return printJSON(instances)
}

func eventsNextAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "event-id")
	if err != nil {
		return err
	}

	instance, err := application.Client().NextEventInstance(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(instance)
}
