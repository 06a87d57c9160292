package main

import (
	"os"

	"github.com/getpactd/pactd/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
