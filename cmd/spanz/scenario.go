package main

import (
	"context"
	"fmt"

	"github.com/zoobzio/spanz/internal/scenario"
)

type scenarioConfig struct {
	*rootConfig
}

func (cfg *scenarioConfig) Exec(ctx context.Context, args []string) error {
	if _, err := cfg.stdout.Write(scenario.DefaultSource()); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	return nil
}
