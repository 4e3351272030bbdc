// The main package for the domcapture executable.
package main

import (
	"os"

	"github.com/JakeFAU/domcapture/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
