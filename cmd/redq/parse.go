package main

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/smackem/redis-q-sub000/syn"
	"github.com/spf13/cobra"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
	SortKeys:                true,
}

func newParse() *cobra.Command {
	return &cobra.Command{
		Use:   "parse EXPR",
		Short: "Print the syntax tree of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := syn.Parse(args[0])
			if err != nil {
				return err
			}
			dumper.Fdump(cmd.OutOrStdout(), x)
			return nil
		},
	}
}
