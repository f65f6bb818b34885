// Package config loads the small operator-facing configuration surface
// described in SPEC_FULL.md §6: a single required positional argument (the
// trace file path) plus a handful of optional, defaulted flags. There are
// no subcommands and no environment variables in the core — the rest of
// the CLI front end goclaw builds (agent management, onboarding flows,
// interactive prompts) is a different subsystem and out of scope here.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config is the fully-resolved set of knobs the reader needs to start.
type Config struct {
	TracePath string

	PollInterval  time.Duration
	RetryInterval time.Duration

	MetricsAddr string

	OTLPEndpoint string
	OTLPInsecure bool
}

// Parse parses args (typically os.Args[1:]) into a Config. It returns an
// error if the trace path positional argument is missing — the one
// user-visible startup error the spec defines.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("tracereader", flag.ContinueOnError)

	pollInterval := fs.Duration("poll-interval", 100*time.Millisecond, "pacing between polls when no new bytes are available")
	retryInterval := fs.Duration("retry-interval", 500*time.Millisecond, "pacing between reopen attempts")
	metricsAddr := fs.String("metrics-addr", ":9090", "address for the /healthz and /metrics listener")
	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP/gRPC collector endpoint; empty disables span export")
	otlpInsecure := fs.Bool("otlp-insecure", false, "skip TLS when dialing the OTLP endpoint")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	if len(rest) < 1 || rest[0] == "" {
		return Config{}, fmt.Errorf("config: missing required trace file path argument")
	}

	return Config{
		TracePath:     rest[0],
		PollInterval:  *pollInterval,
		RetryInterval: *retryInterval,
		MetricsAddr:   *metricsAddr,
		OTLPEndpoint:  *otlpEndpoint,
		OTLPInsecure:  *otlpInsecure,
	}, nil
}
