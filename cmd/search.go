package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/twigtools/twig/internal/session"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [file] [query]",
	Short: "Search node keys, values and paths",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sess, err := session.Open(args[0], cfg, session.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }() // safe to ignore

		scan := sess.Search.Search(context.Background(), args[1])
		shown := 0
		for m := range scan.C {
			if shown < searchLimit {
				color.New(color.FgYellow).Printf("%s", m.Path)
				fmt.Printf("  (%s match)\n", m.Field)
			}
			shown++
		}
		if err := scan.Err(); err != nil {
			return err
		}
		if shown == 0 {
			fmt.Println("No matches.")
		} else if shown > searchLimit {
			fmt.Printf("... and %d more (%d total)\n", shown-searchLimit, shown)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 25, "maximum matches to print")
	rootCmd.AddCommand(searchCmd)
}
