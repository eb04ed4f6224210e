// udesign computes and validates microscope design parameters.
package main

import (
	"os"

	"udesign/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
