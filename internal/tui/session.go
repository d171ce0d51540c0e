package tui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/internal/heap/analyzer"
	"github.com/mabhi256/heapref/internal/heap/inspect"
	"github.com/mabhi256/heapref/internal/referrers"
	"github.com/mabhi256/heapref/utils"
)

// BuildSession builds the referrer graph of targets and wraps it in a tree whose top is labelled label
func BuildSession(ctx context.Context, insp *inspect.Inspector, label string, targets referrers.AddressSet, logger *log.Logger) (*Session, error) {
	g, err := referrers.NewBuilder(insp, referrers.WithLogger(logger)).Build(ctx, targets)
	if err != nil {
		return nil, err
	}
	return &Session{
		Inspector: insp,
		Top:       referrers.NewTargetNode(label, g.Targets()),
		Stats:     g.Stats(),
	}, nil
}

// StringLabel is the tree title for the copies of one string value
func StringLabel(value string) string {
	return strconv.Quote(utils.TruncateString(value, 60))
}

func (m *Model) referrersTask(entry *analyzer.StringEntry) func(context.Context) (any, error) {
	insp, logger := m.insp, m.logger
	return func(ctx context.Context) (any, error) {
		return BuildSession(ctx, insp, StringLabel(entry.Value), referrers.NewAddressSet(entry.Addresses...), logger)
	}
}

func (m *Model) fieldStringsTask(t *referrers.Type, offset int, title string) func(context.Context) (any, error) {
	insp := m.insp
	return func(ctx context.Context) (any, error) {
		summary, err := analyzer.FieldStrings(ctx, insp, t, offset)
		if err != nil {
			return nil, err
		}
		return &Session{Strings: summary, Entries: summary.Entries, StringsTitle: title}, nil
	}
}

func (m *Model) allStringsTask() func(context.Context) (any, error) {
	insp, opts := m.insp, m.opts
	return func(ctx context.Context) (any, error) {
		summary, err := analyzer.Strings(ctx, insp)
		if err != nil {
			return nil, err
		}
		return &Session{
			Strings:      summary,
			Entries:      summary.Filter(opts.MinCount, opts.MinWaste),
			StringsTitle: fmt.Sprintf("Duplicate strings (%d+ copies)", opts.MinCount),
		}, nil
	}
}
