package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/twigtools/twig/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached node stores",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached node stores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.ClearCache(); err != nil {
			return err
		}
		dir, err := store.CacheDir()
		if err != nil {
			return err
		}
		fmt.Printf("Cleared store cache at %s\n", dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
