// Command nammaroute is the NammaRoute companion: a hands-free transit
// voice assistant with a local HTTP API and terminal tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "nammaroute:", err)
		}
		os.Exit(1)
	}
}
