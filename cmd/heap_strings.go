package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mabhi256/heapref/internal/config"
	"github.com/mabhi256/heapref/internal/heap/analyzer"
	"github.com/mabhi256/heapref/internal/heap/inspect"
	"github.com/mabhi256/heapref/internal/tui"
	"github.com/mabhi256/heapref/utils"
)

type stringsOptions struct {
	output   string
	top      int
	minCount int
	minWaste string
}

// resolve fills unset flags from the config
func (o *stringsOptions) resolve(cmd *cobra.Command, cfg *config.Config) (uint64, error) {
	if !cmd.Flags().Changed("top") {
		o.top = cfg.Strings.Top
	}
	if !cmd.Flags().Changed("min-count") {
		o.minCount = cfg.Strings.MinCount
	}
	if !cmd.Flags().Changed("min-waste") {
		o.minWaste = cfg.Strings.MinWaste
	}

	if o.top <= 0 {
		return 0, fmt.Errorf("--top must be positive, got %d", o.top)
	}
	if o.minCount <= 0 {
		return 0, fmt.Errorf("--min-count must be positive, got %d", o.minCount)
	}
	if o.minWaste == "" {
		return 0, nil
	}
	waste, err := utils.ParseMemorySize(o.minWaste)
	if err != nil {
		return 0, fmt.Errorf("--min-waste: %w", err)
	}
	return uint64(waste.Bytes()), nil
}

func newHeapStringsCmd() *cobra.Command {
	opts := &stringsOptions{}

	cmd := &cobra.Command{
		Use:               "strings [hprof-file]",
		Short:             "List duplicate strings and the memory they waste",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: utils.CompleteFilesByExtension(".hprof"),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(opts.output); err != nil {
				return err
			}
			return checkDump(args[0])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFromContext(ctx)
			minWaste, err := opts.resolve(cmd, cfg)
			if err != nil {
				return err
			}

			if opts.output == "tui" {
				return browseStrings(ctx, args[0], opts.minCount, minWaste)
			}

			logger := loggerFromContext(ctx)
			heap, _, err := parseDump(ctx, args[0], cfg, logger)
			if err != nil {
				return err
			}

			prog := newProgress(logger)
			summary, err := analyzer.Strings(ctx, inspect.New(heap, inspect.WithLogger(logger)))
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("summarized %d strings", summary.Objects))

			printStrings(cmd.OutOrStdout(), summary, opts.minCount, minWaste, opts.top)
			return nil
		},
	}

	addOutputFlag(cmd, &opts.output)
	cmd.Flags().IntVarP(&opts.top, "top", "n", 0, "Number of strings to list (default from config)")
	cmd.Flags().IntVar(&opts.minCount, "min-count", 0, "Hide strings with fewer copies (default from config)")
	cmd.Flags().StringVar(&opts.minWaste, "min-waste", "", "Hide strings wasting less memory, e.g. 1K (default from config)")
	return cmd
}

// browseStrings parses the dump inside the TUI and opens the duplicate string list
func browseStrings(ctx context.Context, path string, minCount int, minWaste uint64) error {
	cfg := configFromContext(ctx)
	logger := tuiLogger(ctx)

	load := func(ctx context.Context) (*tui.Session, error) {
		heap, _, err := parseDump(ctx, path, cfg, logger)
		if err != nil {
			return nil, err
		}
		insp := inspect.New(heap, inspect.WithLogger(logger))
		summary, err := analyzer.Strings(ctx, insp)
		if err != nil {
			return nil, err
		}
		return &tui.Session{
			Inspector:    insp,
			Strings:      summary,
			Entries:      summary.Filter(minCount, minWaste),
			StringsTitle: fmt.Sprintf("Duplicate strings (%d+ copies)", minCount),
		}, nil
	}

	return tui.Run("Loading "+path, load, tui.Options{
		MinCount: minCount,
		MinWaste: minWaste,
		Logger:   logger,
	})
}

func printStrings(w io.Writer, s *analyzer.StringSummary, minCount int, minWaste uint64, top int) {
	fmt.Fprintln(w, utils.BoldStyle.Render("Strings"))
	fmt.Fprintf(w, "  Objects:  %d (%s)\n", s.Objects, utils.FormatBytes(s.Bytes))
	fmt.Fprintf(w, "  Unique:   %d\n", s.Unique)
	fmt.Fprintf(w, "  Wasted:   %s (%.1f%% of string memory)\n", utils.FormatBytes(s.Wasted), s.AverageOverhead())
	if s.Unreadable > 0 {
		fmt.Fprintf(w, "  Unreadable: %d\n", s.Unreadable)
	}
	fmt.Fprintln(w)

	entries := s.Filter(minCount, minWaste)
	if len(entries) == 0 {
		fmt.Fprintf(w, "No strings with %d+ copies\n", minCount)
		return
	}

	shown := entries
	if len(shown) > top {
		shown = shown[:top]
	}

	rows := make([][]string, len(shown))
	for i, e := range shown {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(e.Count),
			utils.FormatBytes(e.Size),
			utils.FormatBytes(e.Wasted()),
			tui.StringLabel(e.Value),
		}
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(utils.MutedStyle).
		Headers("#", "Copies", "Size", "Wasted", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return utils.BoldStyle.Padding(0, 1)
			}
			return cell
		})
	fmt.Fprintln(w, t.String())

	if more := len(entries) - len(shown); more > 0 {
		fmt.Fprintf(w, "… %d more\n", more)
	}
}
