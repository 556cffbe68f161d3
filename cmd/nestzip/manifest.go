package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/nestzip"
	"github.com/meigma/nestzip/locator"
)

func newManifestCmd(c *cli) *cobra.Command {
	var attr string
	cmd := &cobra.Command{
		Use:   "manifest LOCATOR",
		Short: "Print the manifest of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withResource(args[0], func(res *locator.Resource) error {
				m, err := res.Archive().Manifest()
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("%s: no manifest: %w", res.Locator(), nestzip.ErrNotFound)
				}
				if attr == "" {
					_, err := m.WriteTo(cmd.OutOrStdout())
					return err
				}
				value, ok := m.Main().Lookup(attr)
				if !ok {
					return fmt.Errorf("%s: no main attribute %q: %w", res.Locator(), attr, nestzip.ErrNotFound)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&attr, "attribute", "a", "", "print only this main attribute")
	return cmd
}
