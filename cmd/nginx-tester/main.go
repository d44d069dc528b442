package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/YuvalKandov/devops-assignment/pkg/config"
	"github.com/YuvalKandov/devops-assignment/pkg/probe"
	"github.com/YuvalKandov/devops-assignment/pkg/suite"

	"github.com/rs/zerolog"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitBadArgs = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", "", "env file to load before reading the environment (default .env if present)")
	runCases := flag.String("run", "", "comma separated test cases to run (default all)")
	list := flag.Bool("list", false, "list test cases and exit")
	flag.Parse()

	cases := suite.DefaultCases()
	if *list {
		for _, c := range cases {
			fmt.Println(c.Name)
		}
		return exitOK
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitBadArgs
	}

	logger := newLogger(cfg.LogLevel)

	if *runCases != "" {
		cases, err = suite.SelectCases(cases, strings.Split(*runCases, ","))
		if err != nil {
			logger.Error().Err(err).Msg("Invalid -run flag")
			return exitBadArgs
		}
	}

	// Stop bursts and backoffs on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prober := probe.NewProber()
	defer prober.Close()

	runner := suite.NewRunner(cfg, prober, cases, os.Stdout, logger)
	report := runner.Run(ctx)

	if report.Failed() {
		return exitFailed
	}
	return exitOK
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
