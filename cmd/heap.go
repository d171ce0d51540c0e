package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mabhi256/heapref/internal/config"
	"github.com/mabhi256/heapref/internal/heap/analyzer"
	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/heap/parser"
	"github.com/mabhi256/heapref/internal/heap/registry"
	"github.com/mabhi256/heapref/utils"
)

var outputFormats = []string{"cli", "tui"}

func newHeapCmd() *cobra.Command {
	heapCmd := &cobra.Command{
		Use:   "heap",
		Short: "Analyze heap dumps",
	}

	heapCmd.AddCommand(newHeapSummaryCmd())
	heapCmd.AddCommand(newHeapValidateCmd())
	heapCmd.AddCommand(newHeapStringsCmd())
	heapCmd.AddCommand(newHeapReferrersCmd())
	return heapCmd
}

// checkDump rejects a missing dump file before any parsing starts
func checkDump(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("not a heap dump file: %s is a directory", path)
	}
	return nil
}

func checkOutput(format string) error {
	if !slices.Contains(outputFormats, format) {
		return fmt.Errorf("invalid output format: %s. Valid options: %v", format, outputFormats)
	}
	return nil
}

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", "cli", "Output format (cli, tui)")
	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return outputFormats, cobra.ShellCompDirectiveNoFileComp
	})
}

// parseDump reads the dump at path. With parser debugging on, a record trace
// is written next to it.
func parseDump(ctx context.Context, path string, cfg *config.Config, logger *log.Logger) (*registry.Heap, *parser.Parser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open file: %w", err)
	}
	defer file.Close()

	opts := []parser.Option{parser.WithLogger(logger)}
	if cfg.Parser.Debug {
		debug, err := os.Create(path + ".debug")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create debug output: %w", err)
		}
		defer debug.Close()
		opts = append(opts, parser.WithDebugOutput(debug))
		logger.Info("writing parser trace", "file", debug.Name())
	}

	prog := newProgress(logger)
	p := parser.NewParser(file, opts...)
	heap, err := p.Parse(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	prog.done("parsed " + path)
	return heap, p, nil
}

func newHeapSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "summary [hprof-file]",
		Short:             "Print record counts of a heap dump",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: utils.CompleteFilesByExtension(".hprof"),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkDump(args[0])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			heap, p, err := parseDump(ctx, args[0], configFromContext(ctx), loggerFromContext(ctx))
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), args[0], heap, p)
			return nil
		},
	}
}

func printSummary(w io.Writer, path string, heap *registry.Heap, p *parser.Parser) {
	stats := heap.Statistics()

	fmt.Fprintln(w, utils.BoldStyle.Render("Heap dump "+path))
	fmt.Fprintf(w, "  ID size:          %d\n", heap.IDSize())
	fmt.Fprintf(w, "  Strings:          %d\n", stats.Strings)
	fmt.Fprintf(w, "  Classes:          %d (%d dumped, %d unloaded)\n", stats.Classes, stats.ClassDumps, stats.UnloadedClasses)
	fmt.Fprintf(w, "  Instances:        %d\n", stats.Instances)
	fmt.Fprintf(w, "  Object arrays:    %d\n", stats.ObjectArrays)
	fmt.Fprintf(w, "  Primitive arrays: %d\n", stats.PrimitiveArrays)
	fmt.Fprintf(w, "  GC roots:         %d\n", stats.GCRoots)
	fmt.Fprintf(w, "  Threads:          %d (%d traces, %d frames)\n", stats.Threads, stats.Traces, stats.Frames)

	records := p.RecordCounts()
	recordTags := make([]model.RecordTag, 0, len(records))
	for tag := range records {
		recordTags = append(recordTags, tag)
	}
	sort.Slice(recordTags, func(i, j int) bool { return recordTags[i] < recordTags[j] })

	fmt.Fprintln(w)
	fmt.Fprintln(w, utils.BoldStyle.Render("Records"))
	for _, tag := range recordTags {
		fmt.Fprintf(w, "  %-24s %d\n", tag, records[tag])
	}

	subs := p.SubRecordCounts()
	subTags := make([]model.SubRecordTag, 0, len(subs))
	for tag := range subs {
		subTags = append(subTags, tag)
	}
	sort.Slice(subTags, func(i, j int) bool { return subTags[i] < subTags[j] })

	fmt.Fprintln(w)
	fmt.Fprintln(w, utils.BoldStyle.Render("Heap dump sub-records"))
	for _, tag := range subTags {
		fmt.Fprintf(w, "  %-24s %d\n", tag, subs[tag])
	}
}

func newHeapValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "validate [hprof-file]",
		Short:             "Validate heap dump file",
		Long:              "Parse the dump and check that every class, field, array element and GC root reference resolves to an object in it.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: utils.CompleteFilesByExtension(".hprof"),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkDump(args[0])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			heap, _, err := parseDump(ctx, args[0], configFromContext(ctx), logger)
			if err != nil {
				return err
			}

			prog := newProgress(logger)
			report, err := analyzer.Validate(ctx, heap)
			if err != nil {
				return err
			}
			prog.done("validated references")

			printValidation(cmd.OutOrStdout(), args[0], report)
			if !report.Valid() {
				return fmt.Errorf("%s has %d unresolved references", args[0], report.Missing)
			}
			return nil
		},
	}
}

func printValidation(w io.Writer, path string, r *analyzer.ValidationReport) {
	fmt.Fprintln(w, utils.BoldStyle.Render("Validating "+path))
	fmt.Fprintf(w, "  Objects:    %d instances, %d object arrays, %d primitive arrays\n",
		r.Stats.Instances, r.Stats.ObjectArrays, r.Stats.PrimitiveArrays)
	fmt.Fprintf(w, "  Classes:    %d\n", r.Stats.ClassDumps)
	fmt.Fprintf(w, "  GC roots:   %d\n", r.Stats.GCRoots)
	fmt.Fprintf(w, "  References: %d checked\n", r.Checked)

	if r.Valid() {
		fmt.Fprintln(w, utils.GoodStyle.Render("✅ All references resolve"))
		return
	}

	fmt.Fprintln(w, utils.CriticalStyle.Render(fmt.Sprintf("❌ %d unresolved references", r.Missing)))

	kinds := make([]string, 0, len(r.MissingByKind))
	for k := range r.MissingByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-20s %d\n", k, r.MissingByKind[k])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, utils.BoldStyle.Render("First unresolved references"))
	for _, m := range r.Samples {
		fmt.Fprintf(w, "  %s\n", m)
	}
}
