// The main package for the tgpipeline executable.
package main

import (
	"fmt"
	"os"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tgpipeline:", err)
		os.Exit(1)
	}
}
