package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/meigma/nestzip/locator"
)

func newCatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cat LOCATOR",
		Short: "Write the content of a resource to stdout",
		Long: `Write the content of a resource to stdout.

An entry is written uncompressed. A container locator ending in "!/" writes
the container's own bytes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withResource(args[0], func(res *locator.Resource) error {
				rc, err := res.Open()
				if err != nil {
					return err
				}
				defer rc.Close()
				if _, err := io.Copy(cmd.OutOrStdout(), rc); err != nil {
					return fmt.Errorf("read %s: %w", res.Locator(), err)
				}
				return nil
			})
		},
	}
}
