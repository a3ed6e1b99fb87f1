// cmd/weft/commands/inspect.go
package commands

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"weft/pkg/document"
	"weft/pkg/types"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <doc>",
	Short: "Dump a document's heads, actors and structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := document.LoadFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		changes := doc.GetChanges(nil)
		actors := map[types.ActorID]int{}
		for _, c := range changes {
			actors[c.Actor]++
		}
		fmt.Fprintf(out, "changes: %d\n", len(changes))
		fmt.Fprintf(out, "actors:  %d\n", len(actors))
		for _, h := range doc.Heads() {
			fmt.Fprintf(out, "head:    %s\n", h)
		}
		value, err := doc.ToJSON(types.RootObj, nil)
		if err != nil {
			return err
		}
		dumper := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
		dumper.Fdump(out, value)
		return nil
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes <doc>",
	Short: "List the change log in topological order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := document.LoadFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range doc.GetChanges(nil) {
			when := ""
			if c.Timestamp != 0 {
				when = time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%s  actor=%s seq=%d ops=%d %s %s\n",
				c.Hash, c.Actor, c.Seq, len(c.Ops), when, c.Message)
		}
		return nil
	},
}
