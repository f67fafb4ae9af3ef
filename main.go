package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

func init() {
	// .env is optional here, flags and the environment are enough
	_ = godotenv.Load()
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(2)
	}

	log := newConsoleLogger(opts.NoColor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, nil, log); err != nil {
		log.Error("%s", err)
		os.Exit(1)
	}

	os.Exit(0)
}

// run executes one version workflow and writes the report if requested.
// transport is used for the Jira requests and may be nil.
func run(ctx context.Context, opts *Options, transport http.RoundTripper, log Logger) error {
	client, err := NewJiraClient(&opts.Config, transport, log)
	if err != nil {
		return err
	}

	result, err := NewRelease(client, opts, log).Run(ctx)
	if err != nil {
		return err
	}

	if opts.Report == "" {
		return nil
	}

	return writeReport(ctx, opts, result, log)
}

func writeReport(ctx context.Context, opts *Options, result *Result, log Logger) error {
	table := NewReleaseTable(opts.Report, opts.ProjectKey, opts.Version, log)
	defer table.Close()

	if err := table.CreateFile(); err != nil {
		return errors.Wrap(err, "creating report")
	}
	if err := table.AddResult(opts.ProjectKey, result); err != nil {
		return errors.Wrap(err, "creating report")
	}
	if err := table.Write(); err != nil {
		return err
	}

	if !opts.Notify {
		return nil
	}

	return table.Send(ctx, mailSettingsFromEnv(os.LookupEnv))
}
