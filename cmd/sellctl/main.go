package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sellconfig/internal/app"
	"sellconfig/internal/config"
	"sellconfig/internal/db"
	"sellconfig/internal/domain"
	"sellconfig/internal/engine"
	"sellconfig/internal/logging"
	"sellconfig/internal/pricing"
	"sellconfig/internal/server"
	"sellconfig/internal/workflow"
	sellconfigsdk "sellconfig/sdk/go"
)

const envPrefix = "SELLCTL"

var rootCmd = &cobra.Command{
	Use:   "sellctl",
	Short: "Device resale pricing admin CLI",
	Long: `sellctl manages per-product sell configurations for the device buy-back flow.
- Steps: the ordered screens a seller walks through (variant, questions, defects, accessories, summary).
- Rules: rounding, floor and cap prices, and the percent band the total adjustment must stay in.
- Options: priced answers offered on a step, e.g. "screen-crack" on defects.
- Test pricing: run a base price through adjustments and selected options without saving anything.
- Event log: every save, reset and delete is recorded; view it with 'sellctl config history'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the root command and reports a failure on stderr.
func execute(ctx context.Context, stderr io.Writer) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func initConfig() {
	// Values already present in the environment win over .env.
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", envFile, err)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the event log")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("env", "development", "runtime environment; production switches to JSON logs")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "env"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(stepsCmd())
	rootCmd.AddCommand(optionsCmd())
	rootCmd.AddCommand(priceCmd())
	rootCmd.AddCommand(defaultsCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage product sell configurations"}
	c.AddCommand(configListCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configImportCmd())
	c.AddCommand(configResetCmd())
	c.AddCommand(configDeleteCmd())
	c.AddCommand(configHistoryCmd())
	return c
}

func configListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSellConfigs(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Product", "Steps", "Options", "Version", "Updated By", "Updated At"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ProductID, it.StepCount, it.OptionCount, it.Version, it.UpdatedBy, it.UpdatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <productId>",
		Short: "Show a product's steps, rules and options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetSellConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printSellConfig(c)
			})
		},
	}
}

// importFile is the YAML layout accepted by config import.
type importFile struct {
	ProductID string           `yaml:"productId"`
	Steps     []workflow.Step  `yaml:"steps"`
	Rules     pricing.RuleSet  `yaml:"rules"`
	Options   []pricing.Option `yaml:"options"`
	Version   int64            `yaml:"version"`
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or replace a product's config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var in importFile
			if err := yaml.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("invalid yaml in %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SaveSellConfig(ctx, engine.SaveOptions{
					ProductID:       in.ProductID,
					Steps:           in.Steps,
					Rules:           in.Rules,
					Options:         in.Options,
					ExpectedVersion: in.Version,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printSellConfig(c)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the product YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <productId>",
		Short: "Restore default rules and steps (options are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ResetSellConfig(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSellConfig(c)
			})
		},
	}
}

func configDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <productId>",
		Short: "Delete a product's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteSellConfig(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func configHistoryCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history <productId>",
		Short: "Show the audit events of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, args[0], n, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ActorID, evt.Payload})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func rulesCmd() *cobra.Command {
	c := &cobra.Command{Use: "rules", Short: "Manage pricing rules"}
	c.AddCommand(rulesSetCmd())
	return c
}

func rulesSetCmd() *cobra.Command {
	var (
		round           int
		floor, capPrice float64
		minPct, maxPct  float64
		clearCap        bool
	)
	cmd := &cobra.Command{
		Use:   "set <productId>",
		Short: "Change some or all of a product's pricing rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				current, err := e.GetSellConfig(ctx, args[0])
				if err != nil {
					return err
				}
				rules := current.Rules.Clone()
				flags := cmd.Flags()
				if flags.Changed("round") {
					rules.RoundToNearest = round
				}
				if flags.Changed("floor") {
					rules.FloorPrice = floor
				}
				if flags.Changed("cap") {
					v := capPrice
					rules.CapPrice = &v
				}
				if clearCap {
					rules.CapPrice = nil
				}
				if flags.Changed("min-percent") {
					rules.MinPercent = minPct
				}
				if flags.Changed("max-percent") {
					rules.MaxPercent = maxPct
				}
				c, err := e.UpdateRules(ctx, args[0], viper.GetString("actor-id"), rules)
				if err != nil {
					return err
				}
				return printSellConfig(c)
			})
		},
	}
	cmd.Flags().IntVar(&round, "round", 0, "round final prices to this multiple")
	cmd.Flags().Float64Var(&floor, "floor", 0, "lowest final price")
	cmd.Flags().Float64Var(&capPrice, "cap", 0, "highest final price")
	cmd.Flags().BoolVar(&clearCap, "no-cap", false, "remove the cap price")
	cmd.Flags().Float64Var(&minPct, "min-percent", 0, "lowest total adjustment as a percent of base")
	cmd.Flags().Float64Var(&maxPct, "max-percent", 0, "highest total adjustment as a percent of base")
	cmd.MarkFlagsMutuallyExclusive("cap", "no-cap")
	return cmd
}

func stepsCmd() *cobra.Command {
	c := &cobra.Command{Use: "steps", Short: "Edit a product's workflow steps"}
	c.AddCommand(stepsListCmd())
	c.AddCommand(stepsAddCmd())
	c.AddCommand(stepsRemoveCmd())
	c.AddCommand(stepsMoveCmd())
	c.AddCommand(stepsUpdateCmd())
	return c
}

func stepsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <productId>",
		Short: "List steps in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetSellConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printSteps(c.Steps)
			})
		},
	}
}

func stepsAddCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add <productId> <key>",
		Short: "Append a step",
		Long:  "Append a step with one of the keys: " + stepKeyList() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := workflow.ParseStepKey(args[1])
			if err != nil {
				return err
			}
			return editSteps(cmd.Context(), args[0], func(seq *workflow.Sequence) error {
				return seq.AddStep(key, title)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "step title")
	return cmd
}

func stepKeyList() string {
	keys := workflow.StepKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func stepsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <productId> <index>",
		Short: "Remove the step at a zero-based index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return editSteps(cmd.Context(), args[0], func(seq *workflow.Sequence) error {
				return seq.RemoveStep(idx)
			})
		},
	}
}

func stepsMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <productId> <index> <up|down>",
		Short: "Swap a step with its neighbour",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			dir, err := workflow.ParseDirection(args[2])
			if err != nil {
				return err
			}
			return editSteps(cmd.Context(), args[0], func(seq *workflow.Sequence) error {
				return seq.MoveStep(idx, dir)
			})
		},
	}
}

func stepsUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <productId> <index> <key|title> <value>",
		Short: "Change the key or title of a step",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return editSteps(cmd.Context(), args[0], func(seq *workflow.Sequence) error {
				return seq.UpdateStep(idx, args[2], args[3])
			})
		},
	}
}

func editSteps(ctx context.Context, productID string, fn func(*workflow.Sequence) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		c, err := e.EditSteps(ctx, productID, viper.GetString("actor-id"), fn)
		if err != nil {
			return err
		}
		return printSteps(c.Steps)
	})
}

func optionsCmd() *cobra.Command {
	c := &cobra.Command{Use: "options", Short: "Manage priced step options"}
	c.AddCommand(optionsListCmd())
	c.AddCommand(optionsSetCmd())
	return c
}

func optionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <productId>",
		Short: "List a product's options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetSellConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printOptions(c.Options)
			})
		},
	}
}

func optionsSetCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set <productId>",
		Short: "Replace a product's options from a YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var options []pricing.Option
			if err := yaml.Unmarshal(data, &options); err != nil {
				return fmt.Errorf("invalid yaml in %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateOptions(ctx, args[0], viper.GetString("actor-id"), options)
				if err != nil {
					return err
				}
				return printOptions(c.Options)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the options YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func priceCmd() *cobra.Command {
	var (
		base     float64
		adjusts  []string
		selected []string
		remote   string
		token    string
	)
	cmd := &cobra.Command{
		Use:   "price <productId>",
		Short: "Preview a price against a product's rules",
		Long: `Adjustments are written label:<sign><value>[%], e.g. "Good Condition:-10%" or "Charger:+200".
Selected option keys are applied after the explicit adjustments.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adjs := make([]pricing.Adjustment, 0, len(adjusts))
			for _, raw := range adjusts {
				adj, err := parseAdjustment(raw)
				if err != nil {
					return err
				}
				adjs = append(adjs, adj)
			}
			if remote != "" {
				if token == "" {
					token = viper.GetString("token")
				}
				client := sellconfigsdk.New(remote, token)
				res, err := client.TestPricing(cmd.Context(), args[0], sellconfigsdk.PricingRequest{
					BasePrice:   base,
					Adjustments: toWireAdjustments(adjs),
					Selected:    selected,
				})
				if err != nil {
					return err
				}
				return printResult(fromWireResult(res))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.TestPricing(ctx, args[0], engine.PricingRequest{
					BasePrice:   base,
					Adjustments: adjs,
					Selected:    selected,
				})
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().Float64Var(&base, "base", 0, "base price")
	cmd.Flags().StringArrayVarP(&adjusts, "adjust", "a", nil, "adjustment label:<+|-><value>[%] (repeatable)")
	cmd.Flags().StringSliceVarP(&selected, "select", "s", nil, "option keys to apply")
	cmd.Flags().StringVar(&remote, "remote", "", "price through a running server, e.g. http://127.0.0.1:8080/api/admin")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for --remote (default $SELLCTL_TOKEN)")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}

func toWireAdjustments(adjs []pricing.Adjustment) []sellconfigsdk.Adjustment {
	out := make([]sellconfigsdk.Adjustment, len(adjs))
	for i, a := range adjs {
		out[i] = sellconfigsdk.Adjustment{Label: a.Label, Delta: toWireDelta(a.Delta)}
	}
	return out
}

func toWireDelta(d pricing.Delta) sellconfigsdk.Delta {
	return sellconfigsdk.Delta{Type: string(d.Type), Sign: string(d.Sign), Value: d.Value}
}

func fromWireResult(res sellconfigsdk.PricingResult) pricing.Result {
	out := pricing.Result{
		BasePrice:       res.BasePrice,
		TotalAdjustment: res.TotalAdjustment,
		RawPrice:        res.RawPrice,
		FinalPrice:      res.FinalPrice,
		AppliedBounds:   res.AppliedBounds,
	}
	for _, line := range res.Breakdown {
		out.Breakdown = append(out.Breakdown, pricing.BreakdownLine{
			Label:  line.Label,
			Delta:  pricing.Delta{Type: pricing.DeltaType(line.Delta.Type), Sign: pricing.Sign(line.Delta.Sign), Value: line.Delta.Value},
			Amount: line.Amount,
		})
	}
	return out
}

// parseAdjustment reads "label:-10%" or "label:+200". The value may carry a
// unit suffix ("%", "pct", "abs"); none means absolute. The label may itself
// contain colons; the last one separates the delta.
func parseAdjustment(raw string) (pricing.Adjustment, error) {
	malformed := fmt.Errorf("adjustment %q must look like label:-10%% or label:+200", raw)
	i := strings.LastIndex(raw, ":")
	if i <= 0 {
		return pricing.Adjustment{}, malformed
	}
	label := strings.TrimSpace(raw[:i])
	spec := strings.TrimSpace(raw[i+1:])
	if spec == "" {
		return pricing.Adjustment{}, malformed
	}
	sign, err := pricing.ParseSign(spec[:1])
	if err != nil {
		return pricing.Adjustment{}, err
	}
	spec = spec[1:]
	cut := strings.LastIndexAny(spec, "0123456789.") + 1
	unit := strings.TrimSpace(spec[cut:])
	if unit == "" {
		unit = string(pricing.DeltaAbsolute)
	}
	typ, err := pricing.ParseDeltaType(unit)
	if err != nil {
		return pricing.Adjustment{}, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(spec[:cut]), 64)
	if err != nil {
		return pricing.Adjustment{}, fmt.Errorf("adjustment %q: invalid value: %w", raw, err)
	}
	return pricing.NewAdjustment(label, typ, sign, value)
}

func defaultsCmd() *cobra.Command {
	c := &cobra.Command{Use: "defaults", Short: "Workspace defaults used by reset"}
	c.AddCommand(defaultsInitCmd())
	c.AddCommand(defaultsShowCmd())
	c.AddCommand(defaultsCheckCmd())
	return c
}

func defaultsInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write sellconfig.yml and a JWT secret into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			if viper.GetString("jwt-secret") == "" {
				envPath := filepath.Join(workspace, ".env")
				if err := setEnvValue(envPath, envPrefix+"_JWT_SECRET", uuid.NewString()); err != nil {
					return err
				}
				fmt.Printf("wrote %s_JWT_SECRET to %s\n", envPrefix, envPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func defaultsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadDefaults(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"rules": cfg.DefaultRules(), "steps": cfg.DefaultSteps()})
			}
			if err := printRules(cfg.DefaultRules()); err != nil {
				return err
			}
			return printSteps(cfg.DefaultSteps())
		},
	}
}

func defaultsCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate sellconfig.yml, or another file given with -f",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if file != "" {
				cfg, err = config.FromFile(file)
			} else {
				file = config.Path(viper.GetString("workspace"))
				cfg, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok: %d steps, %d webhooks\n", file, len(cfg.Defaults.Steps), len(cfg.Webhooks))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "defaults file to validate instead of the workspace one")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token signed with SELLCTL_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("%s_JWT_SECRET is required", envPrefix)
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tok, err := server.SignToken(secret, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default --actor-id)")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"admin"}, "roles claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime; 0 never expires")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			authCfg := server.AuthConfig{
				JWTSecret: viper.GetString("jwt-secret"),
				AdminRole: viper.GetString("admin-role"),
				DevLogin:  devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("%s_JWT_SECRET is required for bearer auth", envPrefix)
			}
			rt, err := app.Open(cmd.Context(), viper.GetString("workspace"), log)
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg, Logger: log})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			server.NewWebhookDispatcher(rt.Engine, rt.Defaults.Webhooks, log).Start(ctx)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			if devLogin {
				log.Warn("dev login enabled; anyone can mint admin tokens")
			}
			log.Info("serving sell config API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Int64("schema_version", rt.SchemaVersion),
				zap.String("docs", "/docs"))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", server.DefaultBasePath, "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST <base>/auth/dev/login (development only)")
	return cmd
}

func newLogger() (*zap.Logger, error) {
	return logging.New(viper.GetString("env"), viper.GetString("log-level"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	rt, err := app.Open(ctx, viper.GetString("workspace"), log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printSellConfig(c domain.SellConfig) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	fmt.Printf("%s (version %d, updated %s by %s)\n", c.ProductID, c.Version, c.UpdatedAt, c.UpdatedBy)
	if err := printSteps(c.Steps); err != nil {
		return err
	}
	if err := printRules(c.Rules); err != nil {
		return err
	}
	return printOptions(c.Options)
}

func printSteps(steps []workflow.Step) error {
	if viper.GetBool("json") {
		return printJSON(steps)
	}
	tw := newTable()
	tw.SetTitle("Steps")
	tw.AppendHeader(table.Row{"#", "Order", "Key", "Title"})
	for i, s := range steps {
		tw.AppendRow(table.Row{i, s.Order, s.Key, s.Title})
	}
	fmt.Println(tw.Render())
	return nil
}

func printRules(r pricing.RuleSet) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	capText := "none"
	if r.HasCap() {
		capText = strconv.FormatFloat(*r.CapPrice, 'f', -1, 64)
	}
	tw := newTable()
	tw.SetTitle("Rules")
	tw.AppendRows([]table.Row{
		{"roundToNearest", r.RoundToNearest},
		{"floorPrice", r.FloorPrice},
		{"capPrice", capText},
		{"minPercent", r.MinPercent},
		{"maxPercent", r.MaxPercent},
	})
	fmt.Println(tw.Render())
	return nil
}

func printOptions(options []pricing.Option) error {
	if viper.GetBool("json") {
		return printJSON(options)
	}
	tw := newTable()
	tw.SetTitle("Options")
	tw.AppendHeader(table.Row{"Key", "Step", "Label", "Delta"})
	for _, o := range options {
		tw.AppendRow(table.Row{o.Key, o.Step, o.Label, formatDelta(o.Delta)})
	}
	fmt.Println(tw.Render())
	return nil
}

func printResult(res pricing.Result) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Adjustment", "Delta", "Amount"})
	tw.AppendRow(table.Row{"Base price", "", res.BasePrice})
	for _, line := range res.Breakdown {
		tw.AppendRow(table.Row{line.Label, formatDelta(line.Delta), line.Amount})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Total adjustment", "", res.TotalAdjustment})
	tw.AppendRow(table.Row{"Raw price", "", res.RawPrice})
	tw.AppendFooter(table.Row{"Final price", strings.Join(res.AppliedBounds, ","), res.FinalPrice})
	fmt.Println(tw.Render())
	return nil
}

func formatDelta(d pricing.Delta) string {
	v := strconv.FormatFloat(d.Value, 'f', -1, 64)
	if d.Type == pricing.DeltaPercent {
		return string(d.Sign) + v + "%"
	}
	return string(d.Sign) + v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setEnvValue sets key in a dotenv file, keeping the other lines as they are.
func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("index %q must be an integer", s)
	}
	return i, nil
}
