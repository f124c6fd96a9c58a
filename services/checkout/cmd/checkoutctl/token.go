package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/ferreteria-checkout/services/checkout/pkg/utils"
	"github.com/urfave/cli/v2"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "bearer tokens for support and local testing",
		Subcommands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "sign an access token for a user",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user-id", Usage: "user to impersonate", Required: true},
					&cli.StringFlag{Name: "secret", Usage: "HS256 signing secret", EnvVars: []string{"ACCESS_SECRET"}},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 15 * time.Minute},
				},
				Action: func(c *cli.Context) error {
					userID := c.Int64("user-id")
					if userID <= 0 {
						return errors.New("user-id must be positive")
					}

					token, err := utils.GenerateToken(c.String("secret"), userID, c.Duration("ttl"))
					if err != nil {
						return fmt.Errorf("issue token: %w", err)
					}

					_, err = fmt.Fprintln(c.App.Writer, token)
					return err
				},
			},
		},
	}
}
