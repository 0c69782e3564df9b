// Command bundlekit prepares a publishable, license-compliant bundle of
// an npm package: resolving its dependency closure, validating policy,
// generating attributions, and producing a bundle directory and tarball.
package main

import (
	"fmt"
	"os"

	"github.com/willibrandon/bundlekit/cmd/bundlekit/cli"
	"github.com/willibrandon/bundlekit/cmd/bundlekit/commands"
)

func main() {
	cli.AddCommand(commands.NewValidateCommand(cli.Console))
	cli.AddCommand(commands.NewWriteCommand(cli.Console))
	cli.AddCommand(commands.NewPackCommand(cli.Console))

	if err := cli.Execute(); err != nil {
		if err.Error() != "" {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
