// Package main is the entry point for the taxonomy service. All behavior
// lives in the cli package; see `taxonomy --help`.
package main

import "taxonomy/internal/cli"

func main() {
	cli.Execute()
}
