// The main package for the companyloc-ingest executable.
package main

import (
	"os"

	"github.com/JakeFAU/companyloc-platform/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
