package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	cli "github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/heysubinoy/flagstore/internal/api"
	"github.com/heysubinoy/flagstore/pkg/flags"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "flag-cli:", err)
		os.Exit(1)
	}
}

// newEnvFlag returns a fresh --env flag; urfave/cli keeps parse state on
// the flag value, so flags are never shared between commands or apps.
func newEnvFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "env",
		Aliases:  []string{"e"},
		Usage:    "environment (production, staging, development)",
		Required: true,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "flag-cli",
		Usage: "manage feature flags on a flagd server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "flagd gRPC address",
				Value:   "localhost:9090",
				EnvVars: []string{"FLAGD_GRPC_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request timeout",
				Value: 5 * time.Second,
			},
		},
		Commands: []*cli.Command{
			newCreateCmd(),
			newGetCmd(),
			newListCmd(),
			newUpdateCmd(),
			newDeleteCmd(),
		},
	}
}

// withClient dials the server and runs fn with a request-scoped context.
func withClient(cctx *cli.Context, fn func(ctx context.Context, c *api.Client) error) error {
	conn, err := grpc.NewClient(cctx.String("addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cctx.Context, cctx.Duration("timeout"))
	defer cancel()
	return fn(ctx, api.NewClient(conn))
}

func printJSON(cctx *cli.Context, v any) error {
	enc := json.NewEncoder(cctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nameArg(cctx *cli.Context) (string, error) {
	if cctx.NArg() != 1 {
		return "", fmt.Errorf("usage: flag-cli %s %s", cctx.Command.Name, cctx.Command.ArgsUsage)
	}
	return cctx.Args().First(), nil
}

func parseRules(s string) ([]flags.Rule, error) {
	var rules []flags.Rule
	if err := json.Unmarshal([]byte(s), &rules); err != nil {
		return nil, fmt.Errorf("invalid --rules JSON: %w", err)
	}
	return rules, nil
}

func newCreateCmd() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "create a flag in one environment",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			newEnvFlag(),
			&cli.BoolFlag{Name: "enabled"},
			&cli.Float64Flag{Name: "percentage", Usage: "rollout percentage; unset when omitted"},
			&cli.StringFlag{Name: "rules", Usage: "rules as a JSON array", Value: "[]"},
		},
		Action: func(cctx *cli.Context) error {
			name, err := nameArg(cctx)
			if err != nil {
				return err
			}
			env, err := flags.ParseEnvironment(cctx.String("env"))
			if err != nil {
				return err
			}
			rules, err := parseRules(cctx.String("rules"))
			if err != nil {
				return err
			}

			flag := flags.Flag{
				Name:        name,
				Environment: env,
				Enabled:     cctx.Bool("enabled"),
				Rules:       rules,
				UpdatedAt:   time.Now().UnixMilli(),
			}
			if cctx.IsSet("percentage") {
				p := cctx.Float64("percentage")
				flag.Percentage = &p
			}

			return withClient(cctx, func(ctx context.Context, c *api.Client) error {
				if err := c.CreateFlag(ctx, flag); err != nil {
					return err
				}
				return printJSON(cctx, flag)
			})
		},
	}
}

func newGetCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "show a flag in one environment",
		ArgsUsage: "<name>",
		Flags:     []cli.Flag{newEnvFlag()},
		Action: func(cctx *cli.Context) error {
			name, err := nameArg(cctx)
			if err != nil {
				return err
			}
			env, err := flags.ParseEnvironment(cctx.String("env"))
			if err != nil {
				return err
			}

			return withClient(cctx, func(ctx context.Context, c *api.Client) error {
				flag, found, err := c.GetFlag(ctx, name, env)
				if err != nil {
					return err
				}
				if !found {
					return cli.Exit(fmt.Sprintf("flag %s not found in %s", name, env), 1)
				}
				return printJSON(cctx, flag)
			})
		},
	}
}

func newListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list every flag in every environment",
		Action: func(cctx *cli.Context) error {
			return withClient(cctx, func(ctx context.Context, c *api.Client) error {
				list, err := c.ListFlags(ctx)
				if err != nil {
					return err
				}
				return printJSON(cctx, list)
			})
		},
	}
}

func newUpdateCmd() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "change the given fields of a flag in one environment",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			newEnvFlag(),
			&cli.StringFlag{Name: "rename", Usage: "new display name (the flag keeps its key)"},
			&cli.BoolFlag{Name: "enabled"},
			&cli.Float64Flag{Name: "percentage"},
			&cli.BoolFlag{Name: "clear-percentage", Usage: "reset the percentage to unset"},
			&cli.StringFlag{Name: "rules", Usage: "rules as a JSON array"},
		},
		Action: func(cctx *cli.Context) error {
			name, err := nameArg(cctx)
			if err != nil {
				return err
			}
			env, err := flags.ParseEnvironment(cctx.String("env"))
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(cctx)
			if err != nil {
				return err
			}

			return withClient(cctx, func(ctx context.Context, c *api.Client) error {
				flag, err := c.UpdateFlag(ctx, name, env, patch)
				if err != nil {
					return err
				}
				return printJSON(cctx, flag)
			})
		},
	}
}

// patchFromFlags specifies only the fields whose command-line flags were
// given.
func patchFromFlags(cctx *cli.Context) (flags.Patch, error) {
	patch := flags.Patch{UpdatedAt: time.Now().UnixMilli()}
	if cctx.IsSet("rename") {
		patch.Name = flags.Some(cctx.String("rename"))
	}
	if cctx.IsSet("enabled") {
		patch.Enabled = flags.Some(cctx.Bool("enabled"))
	}
	if cctx.IsSet("rules") {
		rules, err := parseRules(cctx.String("rules"))
		if err != nil {
			return flags.Patch{}, err
		}
		patch.Rules = flags.Some(rules)
	}
	switch {
	case cctx.IsSet("percentage") && cctx.Bool("clear-percentage"):
		return flags.Patch{}, fmt.Errorf("--percentage and --clear-percentage are mutually exclusive")
	case cctx.IsSet("percentage"):
		patch.Percentage = flags.SetPercentage(cctx.Float64("percentage"))
	case cctx.Bool("clear-percentage"):
		patch.Percentage = flags.ClearPercentage()
	}
	return patch, nil
}

func newDeleteCmd() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete a flag from every environment",
		ArgsUsage: "<name>",
		Action: func(cctx *cli.Context) error {
			name, err := nameArg(cctx)
			if err != nil {
				return err
			}
			return withClient(cctx, func(ctx context.Context, c *api.Client) error {
				if err := c.DeleteFlag(ctx, name); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "Deleted '%s'\n", name)
				return nil
			})
		},
	}
}
