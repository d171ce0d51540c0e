package utils

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// CompleteFilesByExtension completes directories and files ending in one of extensions
func CompleteFilesByExtension(extensions ...string) func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		dir, prefix := filepath.Dir(toComplete), filepath.Base(toComplete)
		if !strings.Contains(toComplete, "/") {
			dir, prefix = ".", toComplete
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var suggestions []string
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
				continue
			}

			suggestion := name
			if dir != "." {
				suggestion = filepath.Join(dir, name)
			}

			switch {
			case entry.IsDir():
				suggestions = append(suggestions, suggestion+"/")
			case hasExtension(name, extensions):
				suggestions = append(suggestions, suggestion)
			}
		}

		slices.Sort(suggestions)
		return suggestions, cobra.ShellCompDirectiveNoFileComp
	}
}

func hasExtension(name string, extensions []string) bool {
	lower := strings.ToLower(name)
	return slices.ContainsFunc(extensions, func(ext string) bool {
		return strings.HasSuffix(lower, ext)
	})
}
