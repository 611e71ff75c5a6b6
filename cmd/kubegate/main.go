// Package main is the entry point for the kubegate CLI. kubegate is a
// safety gateway for kubectl and shell commands: every command is
// classified, checked against policy, executed under a timeout with
// full process-group control, and retried under advisor guidance when
// that is safe.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/kubegate/internal/advisor"
	"github.com/normanking/kubegate/internal/audit"
	"github.com/normanking/kubegate/internal/command"
	"github.com/normanking/kubegate/internal/config"
	"github.com/normanking/kubegate/internal/dispatch"
	"github.com/normanking/kubegate/internal/gateway"
	"github.com/normanking/kubegate/internal/logging"
	"github.com/normanking/kubegate/internal/policy"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	log     *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kubegate",
		Short: "kubegate - Policy-checked kubectl and shell command gateway",
		Long: `kubegate sits between an operator (or an automation layer) and the
cluster. Every command is classified by shape, checked against a
layered safety policy, and executed with timeout, cancellation and
bounded advisor-guided retries.

Run a command:       kubegate exec -- kubectl get pods
Dry-run the policy:  kubegate check "kubectl delete ns prod"
Inspect the policy:  kubegate policy show
Review attempts:     kubegate audit`,
		PersistentPreRunE: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.kubegate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kubegate v%s\n", version)
		},
	})

	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	logDir := filepath.Join(home, ".kubegate", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile := filepath.Join(logDir, fmt.Sprintf("kubegate_%s.log", timestamp))

	var cfg *logging.Config
	if verbose {
		cfg = logging.VerboseConfig()
	} else {
		cfg = logging.DefaultConfig()
	}
	cfg.FilePath = logFile

	log = logging.New(cfg)
	logging.SetGlobal(log)

	log.Debug("kubegate session started - logging to %s", logFile)
	return nil
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !verbose {
		logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	}
	return cfg, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// GATEWAY ASSEMBLY
// ═══════════════════════════════════════════════════════════════════════════════

type runtimeParts struct {
	cfg      *config.Config
	engine   *policy.Engine
	registry *dispatch.Registry
	gateway  *gateway.Gateway
	ledger   *audit.Ledger
}

func buildRuntime() (*runtimeParts, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	engine := policy.NewEngine(
		policy.WithAdminMode(cfg.Policy.AdminMode),
		policy.WithShellEnabled(cfg.Policy.ShellEnabled),
	)
	for _, verb := range cfg.Policy.ExtraDangerous {
		engine.AddDangerousCommand(verb)
	}
	for _, sh := range cfg.Policy.ExtraSafeShell {
		engine.AddSafeShellCommand(sh)
	}

	registry := dispatch.NewRegistry()
	dispatcher := dispatch.NewDispatcher(registry,
		dispatch.WithTimeout(cfg.Executor.Timeout),
		dispatch.WithOutputLimit(cfg.Executor.OutputLimitBytes),
	)

	var adv advisor.Advisor
	if cfg.Advisor.Mode == "llm" {
		adv = advisor.NewLLMAdvisor(advisor.LLMConfig{
			Endpoint: cfg.Advisor.Endpoint,
			APIKey:   cfg.Advisor.APIKey,
			Model:    cfg.Advisor.Model,
			Timeout:  cfg.Advisor.Timeout,
		})
	} else {
		adv = advisor.NewRuleAdvisor()
	}

	gwOpts := []gateway.GatewayOption{gateway.WithMaxRetries(cfg.Retry.MaxRetries)}

	var ledger *audit.Ledger
	if cfg.Audit.Enabled {
		ledger, err = audit.NewLedger(cfg.Audit.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open audit ledger: %w", err)
		}
		gwOpts = append(gwOpts, gateway.WithRecorder(ledger))
	}

	return &runtimeParts{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		gateway:  gateway.New(engine, dispatcher, adv, gwOpts...),
		ledger:   ledger,
	}, nil
}

func (p *runtimeParts) close() {
	if p.ledger != nil {
		p.ledger.Close()
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXEC COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func execCmd() *cobra.Command {
	var (
		intent  string
		timeout time.Duration
		taskID  string
	)

	cmd := &cobra.Command{
		Use:   "exec [command...]",
		Short: "Classify, policy-check and run a command with bounded retries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := buildRuntime()
			if err != nil {
				return err
			}
			defer parts.close()

			// Ctrl-C terminates the running task's whole process
			// group, then the loop observes the cancellation.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			outcome := parts.gateway.Run(ctx, gateway.Request{
				Intent:  intent,
				Command: strings.Join(args, " "),
				Timeout: timeout,
				TaskID:  taskID,
			})
			printOutcome(outcome)

			if outcome.Status != gateway.StatusSuccess && outcome.Status != gateway.StatusGoalAchieved {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&intent, "intent", "", "natural-language goal, used for retry advice")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout (default from config)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id for external cancellation")
	return cmd
}

func printOutcome(outcome *gateway.Outcome) {
	for _, attempt := range outcome.Attempts {
		fmt.Printf("── attempt %d: %s\n", attempt.Number, attempt.Command)
		if !attempt.Decision.Allowed {
			fmt.Printf("   denied: %s\n", attempt.Decision.Reason)
			continue
		}
		if attempt.Result != nil && attempt.Result.Output != "" {
			fmt.Print(attempt.Result.Output)
			if !strings.HasSuffix(attempt.Result.Output, "\n") {
				fmt.Println()
			}
		}
		if attempt.Result != nil && !attempt.Result.Success {
			fmt.Printf("   error: %s\n", attempt.Result.Error)
		}
	}
	fmt.Printf("status: %s (%s)\n", outcome.Status, outcome.Reason)
}

// ═══════════════════════════════════════════════════════════════════════════════
// CHECK COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [command]",
		Short: "Classify a command and show the policy verdict without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := buildRuntime()
			if err != nil {
				return err
			}
			defer parts.close()

			raw := strings.Join(args, " ")
			parsed := command.Classify(raw)
			decision := parts.engine.Evaluate(parsed)

			fmt.Printf("command:  %s\n", raw)
			fmt.Printf("kind:     %s\n", parsed.Kind)
			if len(parsed.Segments) > 1 {
				fmt.Printf("segments: %s\n", strings.Join(parsed.Segments, " | "))
			}
			verdict := "DENY"
			if decision.Allowed {
				verdict = "ALLOW"
			}
			fmt.Printf("verdict:  %s - %s\n", verdict, decision.Reason)
			if !decision.Allowed {
				os.Exit(1)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// POLICY COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the active safety policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active policy lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := buildRuntime()
			if err != nil {
				return err
			}
			defer parts.close()

			snap := parts.engine.Snapshot()
			fmt.Printf("admin mode:     %v\n", snap.AdminMode)
			fmt.Printf("shell enabled:  %v\n", snap.ShellEnabled)
			fmt.Printf("dangerous:      %s\n", strings.Join(snap.DangerousList(), ", "))
			fmt.Printf("safe verbs:     %s\n", strings.Join(snap.SafeList(), ", "))
			for _, verb := range []string{policy.VerbCreate, policy.VerbApply, policy.VerbScale} {
				fmt.Printf("%-15s %s\n", verb+" allows:", strings.Join(snap.SafeResourceList(verb), ", "))
			}
			fmt.Printf("safe shell:     %s\n", strings.Join(snap.SafeShellList(), ", "))
			fmt.Printf("blocked shell:  %s\n", strings.Join(snap.DangerousShellList(), ", "))
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// AUDIT COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func auditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent attempts from the audit ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("audit ledger is disabled in configuration")
			}

			ledger, err := audit.NewLedger(cfg.Audit.DataDir)
			if err != nil {
				return err
			}
			defer ledger.Close()

			records, err := ledger.RecentAttempts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no attempts recorded yet")
				return nil
			}

			for _, rec := range records {
				verdict := "deny"
				if rec.Allowed {
					verdict = "allow"
				}
				fmt.Printf("%s  %-13s %-5s code=%-3d %s\n",
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
					rec.Status, verdict, rec.ReturnCode, rec.Command)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to display")
	return cmd
}
