package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "stored token management",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "show stored tokens and their expiry status",
				Action: tokensListAction,
			},
			{
				Name:   "clear",
				Usage:  "remove all stored tokens",
				Action: tokensClearAction,
			},
		},
	}
}

func tokensListAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	records, err := application.Store().Records(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No tokens stored. Run 'anymoment auth login' to authenticate.")
		return nil
	}

	now := time.Now()
	for host, rec := range records {
		status := "valid"
		if rec.ExpiredAt(now, 0) {
			status = "expired"
		}
		expires := "never"
		if rec.Expires() {
			expires = rec.ExpiresAt.Local().Format(time.RFC3339)
		}
		fmt.Printf("%s\n  status: %s\n  expires: %s\n", host, status, expires)
	}
	return nil
}

func tokensClearAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	if err := application.Store().Clear(ctx); err != nil {
		return err
	}
	fmt.Println("All tokens cleared")
	return nil
}
