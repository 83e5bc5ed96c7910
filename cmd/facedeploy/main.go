package main

import (
	"os"

	"github.com/majorcontext/facedeploy/cmd/facedeploy/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
