package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "log in and store a token for the configured host",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "email",
						Usage: "account email (prompted if omitted)",
					},
				},
				Action: loginAction,
			},
			{
				Name:   "logout",
				Usage:  "remove the stored token for the configured host",
				Action: logoutAction,
			},
			{
				Name:   "whoami",
				Usage:  "show the account the stored token belongs to",
				Action: whoamiAction,
			},
		},
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	client := application.Client()

	email := cmd.String("email")
	if email == "" {
		email, err = promptLine("Email: ")
		if err != nil {
			return err
		}
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	rec, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	fmt.Printf("Logged in to %s\n", client.BaseURL())
	if rec.Expires() {
		fmt.Printf("Token expires at %s\n", rec.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	if err := application.Client().Logout(ctx); err != nil {
		return err
	}
	fmt.Printf("Logged out from %s\n", application.Client().BaseURL())
	return nil
}

func whoamiAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	user, err := application.Client().Me(ctx)
	if err != nil {
		return err
	}
	return printJSON(user)
}

// promptLine reads one line from stdin after printing the prompt.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echoing it. Falls back to a
// plain read when stdin is not a terminal (piped input).
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}
