package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/reader"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Load the local cache once and print its health as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(logger)
		if err != nil {
			return err
		}

		rdr := reader.New(cfg, logger)
		if err := rdr.RefreshCache(true); err != nil {
			logger.Warn("cache load failed", "error", err)
		}

		out, err := json.MarshalIndent(rdr.GetHealth(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode health: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}
