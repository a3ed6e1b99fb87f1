//
// weft CLI - inspect, convert and sync weft documents.
//
// Usage:
//
//	weft export doc.weft            # print the document as JSON
//	weft import data.json doc.weft  # build a document from JSON
//	weft inspect doc.weft           # dump structure and history
//	weft changes doc.weft           # list the change log
//	weft sqlite doc.weft out.db     # export into a SQLite database
//	weft sync serve|join ...        # sync two documents over a websocket
package main

import (
	"fmt"
	"os"

	"weft/cmd/weft/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
