// Package main provides a CLI tool for inspecting and maintaining a
// ransomwatch threat log.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"ransomwatch/internal/threatlog"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		runListCmd(os.Args[2:])
	case "export-csv":
		runExportCmd(os.Args[2:])
	case "clear":
		runClearCmd(os.Args[2:])
	case "stats":
		runStatsCmd(os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("ransomwatch-logctl %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: ransomwatch-logctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  list         List threats recorded in the log\n")
	fmt.Fprintf(os.Stderr, "  export-csv   Export the log to a CSV file\n")
	fmt.Fprintf(os.Stderr, "  clear        Empty the log (keeping the file in place)\n")
	fmt.Fprintf(os.Stderr, "  stats        Show aggregate counts by level and detector\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -version     Show version and exit\n")
}

func logPathFlag(fs *flag.FlagSet) *string {
	return fs.String("log", defaultLogPath(), "path to the threat log JSON file")
}

func defaultLogPath() string {
	if p := os.Getenv("RANSOMWATCH_THREATLOG_PATH"); p != "" {
		return p
	}
	return "./sentinel-threats.json"
}

func runListCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	path := logPathFlag(fs)
	days := fs.Int("days", 0, "only show entries from the last N days (0 = all)")
	fs.Parse(args)

	log, err := threatlog.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var entries []threatlog.Entry
	if *days > 0 {
		entries, err = log.SinceDays(*days)
	} else {
		entries, err = log.Entries()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("no threats recorded")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tLEVEL\tDETECTOR\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Detector, e.Description)
	}
	tw.Flush()
}

func runExportCmd(args []string) {
	fs := flag.NewFlagSet("export-csv", flag.ExitOnError)
	path := logPathFlag(fs)
	out := fs.String("out", "threats.csv", "destination CSV path")
	fs.Parse(args)

	log, err := threatlog.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := log.ExportCSV(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("exported to %s\n", *out)
}

func runClearCmd(args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	path := logPathFlag(fs)
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.Parse(args)

	if !*yes {
		fmt.Fprintf(os.Stderr, "refusing to clear %s without -yes\n", *path)
		os.Exit(1)
	}

	log, err := threatlog.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("log cleared")
}

func runStatsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	path := logPathFlag(fs)
	fs.Parse(args)

	log, err := threatlog.New(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	stats, err := log.Statistics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("total threats: %d\n\n", stats.Total)

	fmt.Println("by level:")
	for _, level := range []string{"Critical", "High", "Medium", "Low"} {
		if count, ok := stats.ByLevel[level]; ok {
			fmt.Printf("  %-10s %d\n", level, count)
		}
	}

	fmt.Println("\nby detector:")
	for _, name := range threatlog.RecentDetectors(stats) {
		fmt.Printf("  %-15s %d\n", name, stats.ByDetector[name])
	}
}
