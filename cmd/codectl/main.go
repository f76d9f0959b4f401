// Command codectl is the operator CLI for the coding engine. It shares the server's wiring
// (Postgres, Neo4j, Qdrant, Redis) but never serves HTTP.
package main

import (
	"errors"
	"fmt"
	"os"
)

const (
	exitOK        = 0
	exitError     = 1
	exitUnhealthy = 2
)

// errUnhealthy is returned by audit and backlog when the report itself is the failure.
var errUnhealthy = errors.New("unhealthy")

func main() {
	err := rootCmd.Execute()
	closeApp()
	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, errUnhealthy):
		os.Exit(exitUnhealthy)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
}
