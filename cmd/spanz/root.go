package main

import (
	"io"
	"log/slog"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
)

type rootConfig struct {
	stdout io.Writer
	stderr io.Writer

	logLevel string
	output   string

	logger *slog.Logger
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log",
		Value:       ffval.NewEnum(&cfg.logLevel, "none", "n", "info", "i", "debug", "d"),
		Usage:       "log level: n/none, i/info, d/debug",
		Placeholder: "LEVEL",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'o',
		LongName:    "output",
		Value:       ffval.NewEnum(&cfg.output, "text", "json"),
		Usage:       "output format: text, json",
		Placeholder: "FORMAT",
	})
}
