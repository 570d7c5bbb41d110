package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nftcheckout/internal/auth/password"
	"github.com/smallbiznis/nftcheckout/internal/delivery"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	"github.com/smallbiznis/nftcheckout/internal/events"
	"github.com/smallbiznis/nftcheckout/internal/lead"
	"github.com/smallbiznis/nftcheckout/internal/migration"
	"github.com/smallbiznis/nftcheckout/internal/providers"
	"github.com/smallbiznis/nftcheckout/internal/scheduler"
	"github.com/smallbiznis/nftcheckout/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the delivery scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	app := fx.New(
		infrastructure(),
		migration.Module,
		server.Domain,
		server.Module,
		scheduler.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				migration.Module,
				fx.NopLogger,
			)
			return runOnce(app, func(context.Context) error {
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func redeliverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redeliver <delivery-id>",
		Short: "Reset a pending or failed delivery and attempt it now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snowflake.ParseString(strings.TrimSpace(args[0]))
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid delivery id %q", args[0])
			}

			var deliveries deliverydomain.Service
			app := fx.New(
				infrastructure(),
				events.Module,
				providers.Module,
				lead.Module,
				delivery.Module,
				fx.Populate(&deliveries),
				fx.NopLogger,
			)
			return runOnce(app, func(ctx context.Context) error {
				retried, err := deliveries.Retry(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "delivery %s: %s (attempts %d)\n", retried.ID, retried.Status, retried.Attempts)
				return nil
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash for checkout.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			if f, ok := cmd.InOrStdin().(*os.File); ok && f == os.Stdin {
				fmt.Fprint(cmd.ErrOrStderr(), "password: ")
			}
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no password given on stdin")
			}

			hash, err := password.Hash(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
