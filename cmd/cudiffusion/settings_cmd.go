package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cudiffusion/internal/logger"
	"github.com/samcharles93/cudiffusion/internal/settings"
)

func settingsCmd() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Inspect or change persisted studio settings",
		Flags: pathFlags(),
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the settings document",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store, err := cliSettings(ctx, cmd)
					if err != nil {
						return err
					}
					return printJSON(cmd, store.Snapshot())
				},
			},
			{
				Name:      "get",
				Usage:     "Print one setting",
				ArgsUsage: "<path>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := strings.TrimSpace(cmd.Args().First())
					if path == "" {
						return cli.Exit("error: setting path is required (e.g. image_model/scheduler)", 1)
					}
					store, err := cliSettings(ctx, cmd)
					if err != nil {
						return err
					}
					v := store.Get(path, nil)
					if v == nil {
						return cli.Exit(fmt.Sprintf("error: unknown setting: %s", path), 1)
					}
					return printJSON(cmd, v)
				},
			},
			{
				Name:      "set",
				Usage:     "Change one setting; the value is JSON (true, \"karras\")",
				ArgsUsage: "<path> <value>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return cli.Exit("error: usage: settings set <path> <value>", 1)
					}
					path, raw := cmd.Args().Get(0), cmd.Args().Get(1)
					control, ok := settings.Lookup(settings.SidebarControls(), path)
					if !ok {
						return cli.Exit(fmt.Sprintf("error: unknown setting: %s", path), 1)
					}
					value, err := parseSettingValue(raw)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					store, err := cliSettings(ctx, cmd)
					if err != nil {
						return err
					}
					if err := settings.Apply(store, control, value); err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					return printJSON(cmd, settings.Bind(store, control))
				},
			},
		},
	}
}

func cliSettings(ctx context.Context, cmd *cli.Command) (*settings.Store, error) {
	cfg, err := commandConfig(cmd, applyPathFlags)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return openSettings(cfg, logger.FromContext(ctx)), nil
}

// parseSettingValue decodes raw as JSON. Anything that is not valid JSON is
// taken as a bare string so `settings set image_model/scheduler karras` works.
func parseSettingValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty value")
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}

func printJSON(cmd *cli.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(out))
	return err
}
