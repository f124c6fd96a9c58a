package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/gateway/transbank"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func webpayCommand() *cli.Command {
	return &cli.Command{
		Name:  "webpay",
		Usage: "query Transbank Webpay Plus",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "show the gateway's view of a transaction",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "Webpay transaction token", Required: true},
					&cli.StringFlag{
						Name:    "base-url",
						EnvVars: []string{"WEBPAY_BASE_URL"},
						Value:   "https://webpay3gint.transbank.cl",
					},
					&cli.StringFlag{
						Name:    "commerce-code",
						EnvVars: []string{"WEBPAY_COMMERCE_CODE"},
						Value:   "597055555532",
					},
					&cli.StringFlag{
						Name:    "api-key-secret",
						EnvVars: []string{"WEBPAY_API_KEY_SECRET"},
						Value:   "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C",
					},
					&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second},
				},
				Action: func(c *cli.Context) error {
					client := transbank.NewClient(transbank.Config{
						BaseURL:      c.String("base-url"),
						CommerceCode: c.String("commerce-code"),
						APIKeySecret: c.String("api-key-secret"),
						Timeout:      c.Duration("timeout"),
					}, zap.NewNop())

					status, err := client.Status(c.Context, c.String("token"))
					if err != nil {
						return fmt.Errorf("webpay status: %w", err)
					}

					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(status)
				},
			},
		},
	}
}
