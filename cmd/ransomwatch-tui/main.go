// Package main is the entry point for the ransomwatch terminal dashboard.
package main

import (
	"flag"
	"fmt"
	"os"

	"ransomwatch/internal/tui"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8090", "base URL of a running ransomwatchd status API")
	flag.Parse()

	if err := tui.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "ransomwatch-tui: %v\n", err)
		os.Exit(1)
	}
}
