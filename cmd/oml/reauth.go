package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/official"
)

var reauthCmd = &cobra.Command{
	Use:       "reauth [linear|notion|all]",
	Short:     "Clear cached mcp-remote OAuth tokens so the next connect re-authenticates",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"linear", "notion", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(logger)
		if err != nil {
			return err
		}

		target := "linear"
		if len(args) > 0 {
			target = args[0]
		}

		var result any
		switch target {
		case "linear":
			result = official.ClearTokenCacheForURL(cfg.URL)
		case "notion":
			result = official.ClearTokenCacheForURL(cfg.NotionURL)
		case "all":
			result = map[string]any{
				"linear": official.ClearTokenCacheForURL(cfg.URL),
				"notion": official.ClearTokenCacheForURL(cfg.NotionURL),
			}
		default:
			return fmt.Errorf("unknown target %q (want linear, notion, or all)", target)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}
