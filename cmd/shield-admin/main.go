package main

import (
	"github.com/turtacn/apishield/cmd/cli"
)

// main delegates to the cli package.
func main() {
	cli.Execute()
}
