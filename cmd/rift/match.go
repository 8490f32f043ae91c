package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/originalmmd/rift-robotics-ai/internal/app"
	"github.com/originalmmd/rift-robotics-ai/internal/intent"
)

func runMatch(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("match", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "rift.yaml", "path to the YAML configuration file")
	seed := fs.Uint64("seed", 0, "seed for reply selection; 0 picks at random")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: rift match [--config FILE] [--seed N] TEXT...")
		return 2
	}

	cfg, ok := loadConfig(*configPath, stderr)
	if !ok {
		return 1
	}
	newLogger(stderr, cfg.Server.LogLevel)

	var opts []app.Option
	if *seed != 0 {
		opts = append(opts, app.WithPicker(intent.NewSeededPicker(*seed)))
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "rift: %v\n", err)
		return 1
	}

	resp, err := a.Pipeline().Prepare(context.Background(), strings.Join(fs.Args(), " "))
	if err != nil {
		fmt.Fprintf(stderr, "rift: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(stderr, "rift: %v\n", err)
		return 1
	}
	return 0
}
