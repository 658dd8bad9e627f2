// Command redisbulk scans redis keyspace and applies bulk mutations to matched keys.
package main

import (
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
