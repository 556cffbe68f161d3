package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/nestzip/locator"
)

func newStatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stat LOCATOR",
		Short: "Describe a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withResource(args[0], func(res *locator.Resource) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
				fmt.Fprintf(tw, "Locator:\t%s\n", res.Locator())
				fmt.Fprintf(tw, "Container:\t%s\n", res.Archive().Name())
				fmt.Fprintf(tw, "Size:\t%d\n", res.Size())
				fmt.Fprintf(tw, "Type:\t%s\n", res.ContentType())
				if e := res.Entry(); e != nil {
					fmt.Fprintf(tw, "Method:\t%s\n", e.Method)
					fmt.Fprintf(tw, "CRC32:\t%08x\n", e.CRC32)
				}
				if mod, ok := res.LastModified(); ok {
					fmt.Fprintf(tw, "Modified:\t%s\n", mod.UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newDigestCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "digest LOCATOR...",
		Short: "Print the SHA-256 digest of resources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, address := range args {
				err := c.withResource(address, func(res *locator.Resource) error {
					d, err := res.Digest()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", d, address)
					return err
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
