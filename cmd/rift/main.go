// Command rift is the entry point for the rift voice-response service.
//
// Usage:
//
//	rift fx [--preset archive] IN.wav OUT.wav
//	rift match [--config rift.yaml] [--seed N] TEXT...
//	rift serve [--config rift.yaml] [--env-file .env]
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/originalmmd/rift-robotics-ai/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "fx":
		return runFX(args[1:], stdout, stderr)
	case "match":
		return runMatch(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "rift: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: rift <command> [flags]

commands:
  fx     apply an FX preset to a WAV file
  match  print the reply selected for a transcript
  serve  run the ops listener (/healthz, /readyz, /metrics)
`)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger installs a text handler on w whose level can be changed later
// through the returned LevelVar.
func newLogger(w io.Writer, level config.LogLevel) *slog.LevelVar {
	lv := new(slog.LevelVar)
	lv.Set(level.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})))
	return lv
}

// loadConfig loads path and prints a friendly message on failure.
func loadConfig(path string, stderr io.Writer) (*config.Config, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "rift: %v\n", err)
		return nil, false
	}
	return cfg, true
}
