// spanz plays span scenarios against an in-process tracer and prints the
// resulting tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("spanz")
	rootConfig.register(rootFlags)

	rootCommand := &ff.Command{
		Name:      "spanz",
		ShortHelp: "play span scenarios and print the resulting trees",
		Flags:     rootFlags,
	}

	// Config for `spanz run`.
	runConfig := &runConfig{rootConfig: rootConfig}
	runFlags := ff.NewFlagSet("run").SetParent(rootFlags)
	runConfig.register(runFlags)
	runCommand := &ff.Command{
		Name:      "run",
		ShortHelp: "play a scenario",
		LongHelp:  "Play a TOML scenario, or the built-in one, and print the collected span tree and tracer stats.",
		Flags:     runFlags,
		Exec:      runConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, runCommand)

	// Config for `spanz scenario`.
	scenarioConfig := &scenarioConfig{rootConfig: rootConfig}
	scenarioCommand := &ff.Command{
		Name:      "scenario",
		ShortHelp: "print the built-in scenario",
		LongHelp:  "Print the built-in scenario as TOML, as a starting point for --scenario files.",
		Flags:     ff.NewFlagSet("scenario").SetParent(rootFlags),
		Exec:      scenarioConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, scenarioCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("SPANZ")); err != nil {
		return err
	}

	// Validation and set-up.
	{
		var (
			dst   = stderr
			level slog.Level
		)
		switch rootConfig.logLevel {
		case "n", "none":
			dst = io.Discard
		case "i", "info":
			level = slog.LevelInfo
		case "d", "debug":
			level = slog.LevelDebug
		default:
			return fmt.Errorf("invalid log level %q", rootConfig.logLevel)
		}
		rootConfig.logger = slog.New(slog.NewTextHandler(dst, &slog.HandlerOptions{Level: level}))
	}

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
