package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/logging"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/irfndi/optionscope/internal/pricing"
	"github.com/irfndi/optionscope/internal/tui"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries what the commands share. The function fields are swapped in tests.
type app struct {
	out    io.Writer
	errOut io.Writer

	loadConfig func() (*config.Config, error)
	newPricing func(cfg config.PricingConfig, logger *logrus.Logger) interfaces.PricingService
	runTUI     func(m tea.Model) error

	cfg    *config.Config
	logger *logrus.Logger
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:        out,
		errOut:     errOut,
		loadConfig: config.Load,
		newPricing: func(cfg config.PricingConfig, logger *logrus.Logger) interfaces.PricingService {
			return pricing.NewClient(cfg, pricing.WithLogger(logger))
		},
		runTUI: func(m tea.Model) error {
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

func (a *app) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.newPricing(a.cfg.Pricing, a.logger), orchestrator.WithLogger(a.logger))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "optionscope",
		Short: "Explore option chains and P/L heatmaps",
		Long: `optionscope loads the option chain of a ticker from the pricing service,
prices one contract with a chosen model and shows its profit/loss heatmap.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if url, _ := cmd.Flags().GetString("service-url"); url != "" {
				cfg.Pricing.ServiceURL = url
			}
			level := cfg.LogLevel
			if override, _ := cmd.Flags().GetString("log-level"); override != "" {
				level = override
			}
			a.cfg = cfg
			a.logger = logging.NewComponentLogger(level, a.errOut)
			return nil
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().String("service-url", "", "pricing service URL (overrides PRICING_SERVICE_URL)")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(newVersionCmd(a), newContractsCmd(a), newHeatmapCmd(a), newTUICmd(a))
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "optionscope %s\n", version)
			fmt.Fprintf(a.out, "  commit:  %s\n", commit)
			fmt.Fprintf(a.out, "  built:   %s\n", date)
		},
	}
}

func newContractsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contracts [ticker]",
		Short: "List the option chain of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := a.newOrchestrator()
			defer orch.Close()

			orch.SetTicker(args[0])
			snap, err := orch.LoadContracts(cmd.Context())
			if err != nil {
				return err
			}
			printContracts(a.out, snap)
			return nil
		},
	}
}

func newHeatmapCmd(a *app) *cobra.Command {
	var (
		index     int
		modelName string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "heatmap [ticker]",
		Short: "Price one contract and print its P/L heatmap",
		Long: `Load the chain of ticker, select the contract at --index (as listed by
"optionscope contracts") and price it with --model.`,
		Example: "  optionscope heatmap AAPL --index 3 --model monte-carlo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := models.ParsePricingModel(modelName)
			if err != nil {
				return err
			}

			orch := a.newOrchestrator()
			defer orch.Close()

			orch.SetTicker(args[0])
			if _, err := orch.LoadContracts(cmd.Context()); err != nil {
				return err
			}
			if _, err := orch.SelectContract(index); err != nil {
				return err
			}
			if _, err := orch.SetModel(model); err != nil {
				return err
			}
			snap, err := orch.LoadHeatmap(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Heatmap)
			}
			contract, _ := snap.SelectedContract()
			fmt.Fprintf(a.out, "%s %s (%s)\n\n", snap.LoadedTicker(), contract.Label(), model.DisplayName())
			fmt.Fprint(a.out, tui.RenderHeatmap(snap.Heatmap))
			return nil
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", 0, "contract index in the chain")
	cmd.Flags().StringVarP(&modelName, "model", "m", string(models.DefaultPricingModel()), "pricing model (black-scholes, monte-carlo, binomial)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the heatmap as JSON")
	return cmd
}

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive heatmap explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch := a.newOrchestrator()
			defer orch.Close()
			return a.runTUI(tui.New(orch, tui.WithRequestTimeout(a.cfg.Pricing.Timeout)))
		},
	}
}

// printContracts lists the catalog with the indexes heatmap --index expects.
func printContracts(w io.Writer, snap orchestrator.Snapshot) {
	cat := snap.Catalog
	if cat.Len() == 0 {
		fmt.Fprintf(w, "No options found for %s.\n", cat.Ticker())
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "TYPE", "STRIKE", "PREMIUM", "EXPIRY")
	for group := range cat.GroupByExpiry() {
		for _, e := range group.Entries {
			t.Row(
				strconv.Itoa(e.Index),
				string(e.Contract.Type),
				e.Contract.Strike.StringFixed(2),
				e.Contract.Premium.StringFixed(2),
				group.Expiry.String(),
			)
		}
	}
	fmt.Fprintf(w, "%s: %d contracts\n", cat.Ticker(), cat.Len())
	fmt.Fprintln(w, t.Render())
}
