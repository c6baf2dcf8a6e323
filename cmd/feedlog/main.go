// feedlog inspects an ambience event log image offline: it prints entries
// and daily summaries, wipes the log and exports it to SQLite.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
