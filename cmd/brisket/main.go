// Package main provides the entry point for the brisket CLI.
package main

import (
	"github.com/colthorp/brisket-go/internal/cli"
)

func main() {
	cli.Execute()
}
