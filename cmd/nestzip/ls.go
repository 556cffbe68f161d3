package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/nestzip"
	"github.com/meigma/nestzip/locator"
)

func newLsCmd(c *cli) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls LOCATOR",
		Short: "List the entries of a container or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withResource(args[0], func(res *locator.Resource) error {
				entries, err := listed(res)
				if err != nil {
					return err
				}
				return writeEntries(cmd.OutOrStdout(), entries, long)
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show method, size and modification time")
	return cmd
}

// listed returns the entries a resource names: every entry of a container,
// the entries below a directory, or the single entry of a file.
func listed(res *locator.Resource) ([]*nestzip.Entry, error) {
	e := res.Entry()
	if e != nil && !e.IsDir() {
		return []*nestzip.Entry{e}, nil
	}
	all, err := res.Archive().Entries()
	if err != nil {
		return nil, err
	}
	if e == nil {
		return all, nil
	}
	var below []*nestzip.Entry
	for _, child := range all {
		if child.Name != e.Name && strings.HasPrefix(child.Name, e.Name) {
			below = append(below, child)
		}
	}
	return below, nil
}

func writeEntries(w io.Writer, entries []*nestzip.Entry, long bool) error {
	if !long {
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, e.Name); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t\n",
			e.Method, e.CompressedSize, e.UncompressedSize,
			e.Modified.UTC().Format(time.DateTime), e.Name)
	}
	return tw.Flush()
}
