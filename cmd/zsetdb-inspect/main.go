// zsetdb-inspect dumps the raw contents of the three column families of a
// store directory: every meta row with its count, version and expiry, and
// every member and score entry. Useful when debugging on-disk state.
package main

import (
	"flag"
	"fmt"
	"os"

	"zsetdb/pkg/logger"
	"zsetdb/pkg/zset"
)

func main() {
	var path string
	var withMetrics bool
	flag.StringVar(&path, "db", "", "store directory to inspect")
	flag.BoolVar(&withMetrics, "metrics", false, "also print the engine metrics report")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.InitWithLevel("error")

	store, err := zset.Open(zset.Options{Path: path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.ScanDatabase(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}
	if withMetrics {
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, store.GetProperty("zsetdb.stats"))
	}
}
