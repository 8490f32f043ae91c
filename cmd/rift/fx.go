package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/originalmmd/rift-robotics-ai/pkg/audio/fx"
)

func runFX(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("fx", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	preset := fs.StringP("preset", "p", fx.Archive, "FX preset name")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: rift fx [--preset name] IN.wav OUT.wav")
		return 2
	}
	in, out := fs.Arg(0), fs.Arg(1)

	data, err := os.ReadFile(in)
	if err != nil {
		fmt.Fprintf(stderr, "rift: %v\n", err)
		return 1
	}
	res := fx.Process(data, *preset)
	if err := os.WriteFile(out, res.Audio, 0o644); err != nil {
		fmt.Fprintf(stderr, "rift: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: preset %q %s (%d bytes)\n", out, res.Preset, res.Outcome, len(res.Audio))
	return 0
}
