package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/tabsplit/internal/calculator"
	"github.com/mmynk/tabsplit/internal/config"
	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/gateway"
	"github.com/mmynk/tabsplit/internal/identity"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/session"
	"github.com/mmynk/tabsplit/internal/syncer"
	"github.com/mmynk/tabsplit/internal/ui"
	"github.com/mmynk/tabsplit/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	configDir string
	server    string
	offline   bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "tabsplit",
		Short:         "Split a restaurant bill between diners",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configDir, "config", ".", "directory searched for a .env file")
	root.PersistentFlags().StringVar(&g.server, "server", "", "server URL (overrides TABSPLIT_SERVER_URL)")
	root.PersistentFlags().BoolVar(&g.offline, "offline", false, "do not contact the server")

	root.AddCommand(newTUICmd(g))
	root.AddCommand(newShowCmd(g))
	root.AddCommand(newExtractCmd(g))
	root.AddCommand(newNewCmd(g))
	return root
}

func (g *globals) load() (*config.Client, error) {
	cfg, err := config.LoadClient(g.configDir)
	if err != nil {
		return nil, err
	}
	if g.server != "" {
		cfg.ServerURL = g.server
	}
	return cfg, nil
}

// dialServer returns a gateway authenticated as this device. A device that
// cannot register still talks to the server, without a token.
func dialServer(ctx context.Context, cfg *config.Client) (*gateway.Client, error) {
	ids := identity.NewFileStore(cfg.StateDir)
	device, err := ids.LoadOrCreate()
	if err != nil {
		return nil, err
	}
	if !device.HasValidToken(time.Now()) {
		anon := gateway.New(gateway.Config{BaseURL: cfg.ServerURL})
		token, expires, err := anon.RegisterDevice(ctx, device.ID)
		if err != nil {
			slog.Warn("Device registration failed", "device_id", device.ID, "error", err)
		} else {
			device.Token, device.TokenExpiresAt = token, expires
			if err := ids.Save(device); err != nil {
				slog.Warn("Failed to save device token", "path", ids.Path(), "error", err)
			}
		}
	}
	return gateway.New(gateway.Config{BaseURL: cfg.ServerURL, Token: device.Token}), nil
}

func newTUICmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [link|id]",
		Short: "Run the terminal UI, optionally opening a shared bill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			closer, err := logging.SetupFile(cfg.LogPath(), cfg.LogLevel)
			if err != nil {
				return err
			}
			defer closer.Close()

			tip, err := cfg.Tip()
			if err != nil {
				return err
			}
			store := session.NewStore(session.NewReducer(), session.NewState(uuid.NewString()))
			opts := ui.Options{Store: store, TipPercent: tip, BaseURL: cfg.ServerURL}
			if len(args) == 1 {
				opts.Join = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !g.offline {
				client, err := dialServer(ctx, cfg)
				if err != nil {
					return err
				}
				sync := syncer.New(ctx, store, client)
				defer sync.Close()
				opts.Sync = sync
				opts.Extractor = client
			}
			slog.Info("Starting terminal UI", "server", cfg.ServerURL, "offline", g.offline)
			return ui.Run(ui.New(opts))
		},
	}
}

// ─── show ────────────────────────────────────────────────────────────────────

type itemReport struct {
	Description string `json:"description" yaml:"description"`
	Amount      string `json:"amount" yaml:"amount"`
	Shared      bool   `json:"shared,omitempty" yaml:"shared,omitempty"`
}

type dinerReport struct {
	Name     string       `json:"name" yaml:"name"`
	Items    []itemReport `json:"items" yaml:"items"`
	Subtotal string       `json:"subtotal" yaml:"subtotal"`
	Discount string       `json:"discount" yaml:"discount"`
	Tip      string       `json:"tip" yaml:"tip"`
	Total    string       `json:"total" yaml:"total"`
}

type billReport struct {
	SessionID  string        `json:"session_id" yaml:"session_id"`
	Updated    time.Time     `json:"updated" yaml:"updated"`
	Diners     []dinerReport `json:"diners" yaml:"diners"`
	Subtotal   string        `json:"subtotal" yaml:"subtotal"`
	Discount   string        `json:"discount" yaml:"discount"`
	Tip        string        `json:"tip" yaml:"tip"`
	Total      string        `json:"total" yaml:"total"`
	Unassigned string        `json:"unassigned" yaml:"unassigned"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func newBillReport(id string, s models.Session, tip decimal.Decimal) billReport {
	bill := calculator.CalculateSplit(s, tip)
	report := billReport{
		SessionID:  id,
		Updated:    s.LastUpdated,
		Diners:     make([]dinerReport, 0, len(bill.Splits)),
		Subtotal:   money(bill.Subtotal),
		Discount:   money(bill.Discount),
		Tip:        money(bill.Tip),
		Total:      money(bill.Total),
		Unassigned: money(bill.Unassigned),
	}
	for _, split := range bill.Splits {
		d := dinerReport{
			Name:     split.Name,
			Items:    make([]itemReport, 0, len(split.Items)),
			Subtotal: money(split.Subtotal),
			Discount: money(split.Discount),
			Tip:      money(split.Tip),
			Total:    money(split.Total),
		}
		for _, item := range split.Items {
			d.Items = append(d.Items, itemReport{Description: item.Description, Amount: money(item.Amount), Shared: item.Shared})
		}
		report.Diners = append(report.Diners, d)
	}
	return report
}

func writeReport(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		text(w)
		return nil
	}
	return fmt.Errorf("unknown format %q (text, json or yaml)", format)
}

func newShowCmd(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <link|id>",
		Short: "Print how much every diner of a shared bill owes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if g.offline {
				return errors.New("show needs the server")
			}
			id, err := ui.SessionID(args[0])
			if err != nil {
				return err
			}
			tip, err := cfg.Tip()
			if err != nil {
				return err
			}
			client := gateway.New(gateway.Config{BaseURL: cfg.ServerURL})
			s, err := client.FetchSession(cmd.Context(), id)
			if errors.Is(err, gateway.ErrNotFound) {
				return fmt.Errorf("no shared bill %s", id)
			}
			if err != nil {
				return err
			}
			report := newBillReport(id, s, tip)
			return writeReport(cmd.OutOrStdout(), format, report, func(w io.Writer) {
				for _, d := range report.Diners {
					_, _ = fmt.Fprintf(w, "%-20s %12s\n", d.Name, d.Total)
					for _, item := range d.Items {
						_, _ = fmt.Fprintf(w, "  %-18s %12s\n", item.Description, item.Amount)
					}
				}
				_, _ = fmt.Fprintf(w, "%-20s %12s\n", "TOTAL", report.Total)
				if report.Unassigned != money(decimal.Zero) {
					_, _ = fmt.Fprintf(w, "%-20s %12s\n", "unassigned", report.Unassigned)
				}
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|yaml")
	return cmd
}

// ─── extract ─────────────────────────────────────────────────────────────────

func newExtractCmd(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Read the line items of a receipt image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if g.offline {
				return errors.New("extract needs the server")
			}
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			client, err := dialServer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			lines, err := client.Extract(cmd.Context(), image, http.DetectContentType(image))
			if err != nil {
				return err
			}
			if lines == nil {
				lines = []extraction.Line{}
			}
			return writeReport(cmd.OutOrStdout(), format, lines, func(w io.Writer) {
				for _, l := range lines {
					_, _ = fmt.Fprintf(w, "%3d  %-30s %12s\n", l.Quantity, l.Name, money(l.Price))
				}
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|yaml")
	return cmd
}

// ─── new ─────────────────────────────────────────────────────────────────────

func newNewCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Reserve a session id on the server and print its share link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if g.offline {
				return errors.New("new needs the server")
			}
			client, err := dialServer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			id, err := client.CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), ui.ShareLink(cfg.ServerURL, id))
			return nil
		},
	}
}
