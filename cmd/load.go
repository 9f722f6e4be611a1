package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/twigtools/twig/internal/session"
)

var loadRebuild bool

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Ingest a document into the cached node store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		start := time.Now()
		sess, err := session.Open(args[0], cfg, session.Options{
			Rebuild: loadRebuild,
			Progress: func(read, total int64) {
				if total > 0 {
					fmt.Printf("\rIngesting %s / %s...", humanize.Bytes(uint64(read)), humanize.Bytes(uint64(total)))
				} else {
					fmt.Printf("\rIngesting %s...", humanize.Bytes(uint64(read)))
				}
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }() // safe to ignore

		count, err := sess.Store.NodeCount()
		if err != nil {
			return err
		}
		root, err := sess.Store.Root()
		if err != nil {
			return err
		}

		if sess.Ingested {
			fmt.Printf("\rIngested %s nodes (%s root) in %v.\n",
				humanize.Comma(count), root.Kind, time.Since(start).Round(time.Millisecond))
		} else {
			fmt.Printf("Reused cached store: %s nodes (%s root).\n",
				humanize.Comma(count), root.Kind)
		}
		fmt.Printf("Store: %s\n", sess.Store.Path())
		return nil
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadRebuild, "rebuild", false, "discard any cached store and re-ingest")
	rootCmd.AddCommand(loadCmd)
}
