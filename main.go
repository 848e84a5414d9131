package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/pdfdesk/internal/pages"
	"example.com/pdfdesk/internal/pdfops"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	config   string
	logLevel string
	policy   string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "pdfdesk",
		Short:         "Read, merge and split PDF files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.config, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().StringVar(&g.policy, "policy", "", "range policy past the last page: clamp|reject (overrides config)")

	root.AddCommand(newServeCmd(&g))
	root.AddCommand(newInfoCmd(&g))
	root.AddCommand(newMergeCmd(&g))
	root.AddCommand(newSplitCmd(&g))
	return root
}

// setup loads the config, applies global overrides and builds the logger.
func setup(cmd *cobra.Command, g *globalFlags) (Config, *logrus.Logger, error) {
	cfg, err := loadConfig(g.config)
	if err != nil {
		return Config{}, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.policy != "" {
		cfg.RangePolicy = g.policy
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, log, nil
}

func newOrchestrator(cfg Config, log logrus.FieldLogger) *pdfops.Orchestrator {
	return pdfops.New(pdfops.NewPDFCPUEngine(cfg.Relaxed),
		pdfops.WithPolicy(cfg.policy()),
		pdfops.WithLogger(log),
	)
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr, out string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("out") {
				cfg.OutputDir = out
			}
			srv, err := newServer(cfg, log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "http listen address (e.g. :8080)")
	cmd.Flags().StringVar(&out, "out", defaultOut, "directory for generated PDFs")
	return cmd
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.pdf>",
		Short: "Print page and word counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := newOrchestrator(cfg, log).Info(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "file: %s\npages: %d\nwords: %d\n", args[0], info.Pages, info.Words)
			return nil
		},
	}
}

func newMergeCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "merge -o <out.pdf> <a.pdf> <b.pdf> [more.pdf...]",
		Short: "Merge PDF files in the given order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			inputs := make([]pdfops.Input, 0, len(args))
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				inputs = append(inputs, pdfops.Input{Filename: filepath.Base(p), Data: data})
			}
			res, err := newOrchestrator(cfg, log).Merge(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, res.Data, 0o644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "merged %d files into %s pages=%d words=%d\n", len(res.Sources), output, res.TotalPages, res.TotalWords)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "merged.pdf", "output file")
	return cmd
}

func newSplitCmd(g *globalFlags) *cobra.Command {
	var spec, mode, outDir string
	cmd := &cobra.Command{
		Use:   "split <file.pdf> --ranges <spec>",
		Short: "Split a PDF into page ranges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec == "" {
				return fmt.Errorf("--ranges is required")
			}
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			sel, err := cliSelector(mode, spec, cfg.policy())
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := newOrchestrator(cfg, log).SplitBy(cmd.Context(), data, sel)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			for _, a := range res.Adjustments {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning:", a.String())
			}
			base := baseName(args[0])
			for i, part := range res.Parts {
				name := filepath.Join(outDir, fmt.Sprintf("split_%d_%s.pdf", i+1, base))
				if err := os.WriteFile(name, part.Data, 0o644); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tpages=%d\n", name, part.Label, part.PageCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "ranges", "", `page selection, e.g. "1-3, 5, 7-9"`)
	cmd.Flags().StringVar(&mode, "mode", "ranges", "split mode: ranges|at|pages")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory for the parts")
	return cmd
}

func cliSelector(mode, spec string, policy pages.Policy) (pdfops.Selector, error) {
	switch mode {
	case "ranges":
		return func(total int) ([]pages.Range, []pages.Adjustment, error) {
			return pages.Parse(spec, total, policy)
		}, nil
	case "at":
		n, err := strconv.Atoi(spec)
		if err != nil {
			return nil, fmt.Errorf("--ranges must be a page number in mode at: %w", err)
		}
		return func(total int) ([]pages.Range, []pages.Adjustment, error) {
			r, err := pages.SplitAt(n, total)
			return r, nil, err
		}, nil
	case "pages":
		return func(total int) ([]pages.Range, []pages.Adjustment, error) {
			r, err := pages.Singles(spec, total)
			return r, nil, err
		}, nil
	}
	return nil, fmt.Errorf("unknown split mode %q (want ranges, at or pages)", mode)
}
