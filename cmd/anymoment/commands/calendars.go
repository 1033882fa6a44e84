package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/sineways/anymoment-cli/internal/api"
)

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "calendar management",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list calendars",
				Flags: []cli.Flag{
					activeFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of results"},
					&cli.IntFlag{Name: "offset", Usage: "number of results to skip"},
				},
				Action: calendarsListAction,
			},
			{
				Name:      "get",
				Usage:     "show one calendar",
				ArgsUsage: "<calendar-id>",
				Action:    calendarsGetAction,
			},
			{
				Name:      "create",
				Usage:     "create a calendar",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Usage: "calendar description"},
					&cli.StringFlag{Name: "timezone", Aliases: []string{"z"}, Usage: "calendar timezone (defaults to config)"},
					&cli.StringFlag{Name: "color", Usage: "calendar color"},
				},
				Action: calendarsCreateAction,
			},
			{
				Name:      "update",
				Usage:     "update a calendar",
				ArgsUsage: "<calendar-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "calendar name"},
					&cli.StringFlag{Name: "description", Usage: "calendar description"},
					&cli.StringFlag{Name: "timezone", Aliases: []string{"z"}, Usage: "calendar timezone"},
					&cli.StringFlag{Name: "color", Usage: "calendar color"},
					&cli.BoolFlag{Name: "active", Usage: "active status"},
				},
				Action: calendarsUpdateAction,
			},
			{
				Name:      "delete",
				Usage:     "delete a calendar",
				ArgsUsage: "<calendar-id>",
				Action:    calendarsDeleteAction,
			},
			{
				Name:      "share",
				Usage:     "share a calendar with another user",
				ArgsUsage: "<calendar-id> <user-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Usage: "role: owner, editor, viewer", Value: "viewer"},
				},
				Action: calendarsShareAction,
			},
			{
				Name:      "webhook-url",
				Usage:     "print the webhook URL for a calendar",
				ArgsUsage: "<calendar-id>",
				Action:    calendarsWebhookURLAction,
			},
			{
				Name:      "link",
				Usage:     "attach an event to a calendar",
				ArgsUsage: "<calendar-id> <event-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "order", Usage: "display order within the calendar"},
					&cli.StringFlag{Name: "color", Usage: "color override for this calendar"},
				},
				Action: calendarsLinkAction,
			},
			{
				Name:      "unlink",
				Usage:     "detach an event from a calendar",
				ArgsUsage: "<calendar-id> <event-id>",
				Action:    calendarsUnlinkAction,
			},
		},
	}
}

func activeFlag() cli.Flag {
	return &cli.BoolFlag{Name: "active", Usage: "filter by active status"}
}

// boolFlagPtr returns the flag value as a pointer when set, nil otherwise,
// so unset filters are omitted from requests.
func boolFlagPtr(cmd *cli.Command, name string) *bool {
	if !cmd.IsSet(name) {
		return nil
	}
	v := cmd.Bool(name)
	return &v
}

func stringFlagPtr(cmd *cli.Command, name string) *string {
	if !cmd.IsSet(name) {
		return nil
	}
	v := cmd.String(name)
	return &v
}

func requireArg(cmd *cli.Command, index int, name string) (string, error) {
	value := cmd.Args().Get(index)
	if value == "" {
		return "", fmt.Errorf("missing required argument: %s", name)
	}
	return value, nil
}

func calendarsListAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	calendars, err := application.Client().ListCalendars(ctx, api.ListFilter{
		IsActive: boolFlagPtr(cmd, "active"),
		Limit:    cmd.Int("limit"),
		Offset:   cmd.Int("offset"),
	})
	if err != nil {
		return err
	}
	return printJSON(calendars)
}

func calendarsGetAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}

	calendar, err := application.Client().GetCalendar(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(calendar)
}

func calendarsCreateAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	name, err := requireArg(cmd, 0, "name")
	if err != nil {
		return err
	}

	timezone := cmd.String("timezone")
	if timezone == "" {
		timezone = application.Config().Defaults.Timezone
	}

	calendar, err := application.Client().CreateCalendar(ctx, api.CreateCalendarRequest{
		Name:        name,
		Description: cmd.String("description"),
		Timezone:    timezone,
		Color:       cmd.String("color"),
	})
	if err != nil {
		return err
	}
	return printJSON(calendar)
}

func calendarsUpdateAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}

	calendar, err := application.Client().UpdateCalendar(ctx, id, api.UpdateCalendarRequest{
		Name:        stringFlagPtr(cmd, "name"),
		Description: stringFlagPtr(cmd, "description"),
		Timezone:    stringFlagPtr(cmd, "timezone"),
		Color:       stringFlagPtr(cmd, "color"),
		IsActive:    boolFlagPtr(cmd, "active"),
	})
	if err != nil {
		return err
	}
	return printJSON(calendar)
}

func calendarsDeleteAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}

	if err := application.Client().DeleteCalendar(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted calendar %s\n", id)
	return nil
}

func calendarsShareAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	calendarID, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}
	userID, err := requireArg(cmd, 1, "user-id")
	if err != nil {
		return err
	}

	if err := application.Client().ShareCalendar(ctx, calendarID, userID, cmd.String("role")); err != nil {
		return err
	}
	fmt.Printf("Shared calendar %s with %s\n", calendarID, userID)
	return nil
}

func calendarsLinkAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	calendarID, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}
	eventID, err := requireArg(cmd, 1, "event-id")
	if err != nil {
		return err
	}

	var order *int
	if cmd.IsSet("order") {
		v := cmd.Int("order")
		order = &v
	}
	if err := application.Client().LinkEvent(ctx, calendarID, eventID, order, cmd.String("color")); err != nil {
		return err
	}
	fmt.Printf("Linked event %s to calendar %s\n", eventID, calendarID)
	return nil
}

func calendarsUnlinkAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	calendarID, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}
	eventID, err := requireArg(cmd, 1, "event-id")
	if err != nil {
		return err
	}

	if err := application.Client().UnlinkEvent(ctx, calendarID, eventID); err != nil {
		return err
	}
	fmt.Printf("Unlinked event %s from calendar %s\n", eventID, calendarID)
	return nil
}

func calendarsWebhookURLAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, 0, "calendar-id")
	if err != nil {
		return err
	}

	url, err := application.Client().CalendarWebhookURL(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}
