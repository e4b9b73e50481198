package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meidoworks/nekoq-cutover/internal/checkpoint"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		driver  string
		timeout time.Duration
		code    = 1
	)
	root := &cobra.Command{
		Use:           "gg-checkpoint <host> <port> <service> <user> <password> <[schema.]table>",
		Short:         "Create the replication checkpoint table and its overflow table",
		Args:          cobra.ExactArgs(6),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect, ok := checkpoint.DialectByName(driver)
			if !ok {
				return fmt.Errorf("unknown driver %q", driver)
			}
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[1])
			}
			info := checkpoint.ConnInfo{Host: args[0], Port: port, Service: args[2], User: args[3], Password: args[4]}
			table, err := checkpoint.ParseTable(args[5], info.User)
			if err != nil {
				return err
			}

			log := logrus.New()
			log.SetOutput(stdout)
			log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})

			log.Infof("Connecting to %s:%d/%s as %s (%s)...", info.Host, info.Port, info.Service, info.User, dialect.Name())
			db, err := checkpoint.Open(dialect, info)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}

			report := checkpoint.NewProvisioner(db, dialect, log).Provision(ctx, table)
			if report.OK() {
				log.Infof("Checkpoint table %s ready.", table)
				code = 0
			}
			return nil
		},
	}
	root.Flags().StringVar(&driver, "driver", "oracle", "database flavour: oracle or postgres")
	root.Flags().DurationVar(&timeout, "timeout", time.Minute, "connect and DDL timeout")

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}
	return code
}
