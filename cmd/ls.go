package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/twigtools/twig/internal/session"
	"github.com/twigtools/twig/internal/store"
)

var (
	lsOffset int64
	lsLimit  int64
)

var lsCmd = &cobra.Command{
	Use:   "ls [file] [path]",
	Short: "List one window of a node's children",
	Long: `Resolves a jq-style path (default "." for the root) and prints a
bounded window of that node's children. Oversized sibling sets appear as
bucket ranges.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sess, err := session.Open(args[0], cfg, session.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }() // safe to ignore

		expr := "."
		if len(args) == 2 {
			expr = args[1]
		}
		res, err := sess.Resolver.Resolve(expr)
		if err != nil {
			return err
		}

		window, err := sess.Nav.Window(res.Target.ID, lsOffset, lsLimit)
		if err != nil {
			return err
		}
		for _, s := range window {
			printSummary(s)
		}
		return nil
	},
}

var (
	containerColor = color.New(color.FgCyan, color.Bold)
	bucketColor    = color.New(color.FgMagenta)
	scalarColor    = color.New(color.FgGreen)
	kindColor      = color.New(color.Faint)
)

func printSummary(s store.Summary) {
	switch s.Kind {
	case store.KindObject, store.KindArray:
		containerColor.Printf("▶ %s", s.Key)
		kindColor.Printf("  %s(%d)\n", s.Kind, s.ChildCount)
	case store.KindBucket:
		bucketColor.Printf("▶ %s", s.Key)
		kindColor.Printf("  (%d)\n", s.ChildCount)
	default:
		fmt.Printf("  %s: ", s.Key)
		scalarColor.Printf("%s", s.Preview)
		kindColor.Printf("  %s\n", s.Kind)
	}
}

func init() {
	lsCmd.Flags().Int64Var(&lsOffset, "offset", 0, "window offset within the sibling set")
	lsCmd.Flags().Int64Var(&lsLimit, "limit", 50, "maximum children to list")
	rootCmd.AddCommand(lsCmd)
}
