package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/twigtools/twig/internal/session"
	"github.com/twigtools/twig/internal/store"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [file] [path]",
	Short: "Resolve a jq-style path to its target node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sess, err := session.Open(args[0], cfg, session.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }() // safe to ignore

		res, err := sess.Resolver.Resolve(args[1])
		if err != nil {
			return err
		}

		t := res.Target
		fmt.Printf("id:    %d\n", t.ID)
		fmt.Printf("path:  %s\n", t.Path)
		fmt.Printf("kind:  %s\n", t.Kind)
		if t.Kind.IsContainer() {
			fmt.Printf("children: %d\n", t.ChildCount)
		} else {
			fmt.Printf("value: %s\n", store.Preview(t.Value))
		}
		if len(res.Expand) > 0 {
			fmt.Printf("expand chain: %v\n", res.Expand)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
