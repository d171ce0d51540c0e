package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mabhi256/heapref/internal/config"
	"github.com/mabhi256/heapref/internal/heap/analyzer"
	"github.com/mabhi256/heapref/internal/heap/inspect"
	"github.com/mabhi256/heapref/internal/referrers"
	"github.com/mabhi256/heapref/internal/tui"
	"github.com/mabhi256/heapref/utils"
)

type referrersOptions struct {
	output      string
	str         string
	hasStr      bool
	ids         []string
	class       string
	depth       int
	maxChildren int
}

// selection picks the target objects of a referrers query
type selection struct {
	label   string
	targets referrers.AddressSet
}

func (o *referrersOptions) resolve(cmd *cobra.Command, cfg *config.Config) error {
	o.hasStr = cmd.Flags().Changed("string")
	if !cmd.Flags().Changed("depth") {
		o.depth = cfg.Tree.MaxDepth
	}
	if !cmd.Flags().Changed("max-children") {
		o.maxChildren = cfg.Tree.MaxChildren
	}
	if o.depth <= 0 {
		return fmt.Errorf("--depth must be positive, got %d", o.depth)
	}
	if o.maxChildren <= 0 {
		return fmt.Errorf("--max-children must be positive, got %d", o.maxChildren)
	}

	// parse ids up front so a typo fails before the dump is read
	_, err := parseIDs(o.ids)
	return err
}

func parseIDs(raw []string) ([]referrers.Address, error) {
	addrs := make([]referrers.Address, 0, len(raw))
	for _, s := range raw {
		hex := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
		v, err := strconv.ParseUint(hex, 16, 64)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("invalid object id %q: want a non-zero hex address", s)
		}
		addrs = append(addrs, referrers.Address(v))
	}
	return addrs, nil
}

// selectTargets resolves the chosen --string, --id or --class against the dump
func (o *referrersOptions) selectTargets(ctx context.Context, insp *inspect.Inspector) (*selection, error) {
	switch {
	case o.hasStr:
		summary, err := analyzer.Strings(ctx, insp)
		if err != nil {
			return nil, err
		}
		entry, ok := summary.Find(o.str)
		if !ok {
			return nil, fmt.Errorf("no string equal to %s in dump", strconv.Quote(o.str))
		}
		return &selection{
			label:   tui.StringLabel(entry.Value),
			targets: referrers.NewAddressSet(entry.Addresses...),
		}, nil

	case len(o.ids) > 0:
		addrs, err := parseIDs(o.ids)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if _, ok := insp.Object(a); !ok {
				return nil, fmt.Errorf("object 0x%x not found in dump", uint64(a))
			}
		}
		label := fmt.Sprintf("0x%x", uint64(addrs[0]))
		if len(addrs) > 1 {
			label = fmt.Sprintf("%d objects by id", len(addrs))
		}
		return &selection{label: label, targets: referrers.NewAddressSet(addrs...)}, nil

	case o.class != "":
		addrs, err := insp.InstancesOf(o.class)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("class %s has no instances in dump", o.class)
		}
		return &selection{label: o.class, targets: referrers.NewAddressSet(addrs...)}, nil
	}

	return nil, fmt.Errorf("one of --string, --id or --class is required")
}

func newHeapReferrersCmd() *cobra.Command {
	opts := &referrersOptions{}

	cmd := &cobra.Command{
		Use:   "referrers [hprof-file]",
		Short: "Show the reference chains that keep objects alive",
		Long: `Show every path from a GC root to the selected objects, grouped by referrer
type and field. Select the objects by string value, by object id or by class.`,
		Example: `  heapref heap referrers app.hprof --string "en_US"
  heapref heap referrers app.hprof --id 0x7f3a1000 --id 0x7f3a1040 -o tui
  heapref heap referrers app.hprof --class com.example.Session --depth 4`,
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
			if err := opts.resolve(cmd, cfg); err != nil {
				return err
			}

			if opts.output == "tui" {
				return browseReferrers(ctx, args[0], opts)
			}

			logger := loggerFromContext(ctx)
			session, err := loadReferrers(ctx, args[0], cfg, opts, logger)
			if err != nil {
				return err
			}
			return tui.Print(cmd.OutOrStdout(), session.Top, tui.PrintOptions{
				MaxDepth:    opts.depth,
				MaxChildren: opts.maxChildren,
			})
		},
	}

	addOutputFlag(cmd, &opts.output)
	cmd.Flags().StringVar(&opts.str, "string", "", "Select every java.lang.String with this value")
	cmd.Flags().StringSliceVar(&opts.ids, "id", nil, "Select an object by hex address (repeatable)")
	cmd.Flags().StringVar(&opts.class, "class", "", "Select every instance of a class, e.g. java.util.HashMap")
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", 0, "Levels of the tree to print (default from config)")
	cmd.Flags().IntVar(&opts.maxChildren, "max-children", 0, "Children printed per node (default from config)")
	cmd.MarkFlagsOneRequired("string", "id", "class")
	cmd.MarkFlagsMutuallyExclusive("string", "id", "class")
	return cmd
}

// loadReferrers parses the dump, selects the targets and builds their referrer graph
func loadReferrers(ctx context.Context, path string, cfg *config.Config, opts *referrersOptions, logger *log.Logger) (*tui.Session, error) {
	heap, _, err := parseDump(ctx, path, cfg, logger)
	if err != nil {
		return nil, err
	}
	insp := inspect.New(heap, inspect.WithLogger(logger))

	sel, err := opts.selectTargets(ctx, insp)
	if err != nil {
		return nil, err
	}
	logger.Debug("targets selected", "label", sel.label, "count", len(sel.targets))

	prog := newProgress(logger)
	session, err := tui.BuildSession(ctx, insp, sel.label, sel.targets, logger)
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("built referrer graph of %d nodes", session.Stats.Nodes))
	return session, nil
}

func browseReferrers(ctx context.Context, path string, opts *referrersOptions) error {
	cfg := configFromContext(ctx)
	logger := tuiLogger(ctx)

	minWaste, err := cfg.MinWaste()
	if err != nil {
		return err
	}

	load := func(ctx context.Context) (*tui.Session, error) {
		return loadReferrers(ctx, path, cfg, opts, logger)
	}
	return tui.Run("Loading "+path, load, tui.Options{
		MinCount: cfg.Strings.MinCount,
		MinWaste: uint64(minWaste.Bytes()),
		Logger:   logger,
	})
}
