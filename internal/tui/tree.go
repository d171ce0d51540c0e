package tui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mabhi256/heapref/internal/referrers"
	"github.com/mabhi256/heapref/utils"
)

// row is one visible line of the tree view
type row struct {
	node  *referrers.TreeNode
	depth int
	// ancestors holds the keys above node, not node's own
	ancestors referrers.Ancestors
	parent    int
}

func flatten(top *referrers.TreeNode) []row {
	var rows []row
	var walk func(n *referrers.TreeNode, depth int, anc referrers.Ancestors, parent int)
	walk = func(n *referrers.TreeNode, depth int, anc referrers.Ancestors, parent int) {
		idx := len(rows)
		rows = append(rows, row{node: n, depth: depth, ancestors: anc, parent: parent})
		if !n.Expanded {
			return
		}
		scope := anc.With(n)
		for _, c := range n.Children {
			walk(c, depth+1, scope, idx)
		}
	}
	walk(top, 0, nil, -1)
	return rows
}

func expandable(n *referrers.TreeNode) bool {
	return n.Kind != referrers.RootLeaf && !n.IsLeaf && !n.IsCycle
}

// theme renders the parts of a row label
type theme struct {
	count, scope, name, chain, root, flag func(...string) string
}

func plain(s ...string) string { return strings.Join(s, " ") }

var (
	plainTheme = theme{count: plain, scope: plain, name: plain, chain: plain, root: plain, flag: plain}
	colorTheme = theme{
		count: utils.MutedStyle.Render,
		scope: utils.MutedStyle.Render,
		name:  utils.BoldStyle.Render,
		chain: utils.InfoLightStyle.Render,
		root:  utils.GoodStyle.Render,
		flag:  utils.WarningStyle.Render,
	}
)

func label(n *referrers.TreeNode, th theme) string {
	switch n.Kind {
	case referrers.TargetMarker:
		noun := "objects"
		if n.Count() == 1 {
			noun = "object"
		}
		return th.name(n.Name) + " " + th.count(fmt.Sprintf("(%d %s)", n.Count(), noun))

	case referrers.RootLeaf:
		return th.root("["+n.RootKind.String()+"]") + " " + n.Name

	default:
		var b strings.Builder
		b.WriteString(th.count(fmt.Sprintf("%d×", n.Count())))
		b.WriteString(" ")
		if n.Scope != "" {
			b.WriteString(th.scope(n.Scope))
		}
		b.WriteString(th.name(n.Name))
		b.WriteString(th.chain(n.FieldChain))
		switch {
		case n.Truncated:
			b.WriteString(" " + th.flag("… path continues"))
		case n.IsCycle:
			b.WriteString(" " + th.flag("↻ cycle"))
		}
		return b.String()
	}
}

type PrintOptions struct {
	MaxDepth    int
	MaxChildren int
}

// Print writes the referrer tree below top depth-first, expanding every node
// down to MaxDepth.
func Print(w io.Writer, top *referrers.TreeNode, opts PrintOptions) error {
	bw := bufio.NewWriter(w)
	if !top.Expanded {
		referrers.Expand(top, nil)
	}

	fmt.Fprintln(bw, label(top, plainTheme))
	if len(top.Children) == 0 {
		fmt.Fprintln(bw, "└── (not reachable from any GC root)")
	}
	printChildren(bw, top, nil, "", 1, opts)
	return bw.Flush()
}

func printChildren(w io.Writer, n *referrers.TreeNode, anc referrers.Ancestors, prefix string, depth int, opts PrintOptions) {
	scope := anc.With(n)

	shown := n.Children
	more := 0
	if opts.MaxChildren > 0 && len(shown) > opts.MaxChildren {
		more = len(shown) - opts.MaxChildren
		shown = shown[:opts.MaxChildren]
	}

	for i, c := range shown {
		branch, next := "├── ", "│   "
		if i == len(shown)-1 && more == 0 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintln(w, prefix+branch+label(c, plainTheme))

		if depth >= opts.MaxDepth {
			continue
		}
		if expandable(c) && !c.Expanded {
			referrers.Expand(c, scope)
		}
		if c.Expanded {
			printChildren(w, c, scope, prefix+next, depth+1, opts)
		}
	}

	if more > 0 {
		fmt.Fprintf(w, "%s└── … %d more\n", prefix, more)
	}
}
