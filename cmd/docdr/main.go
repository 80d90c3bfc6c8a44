package main

import (
	"os"

	"github.com/dl-alexandre/docdr/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
