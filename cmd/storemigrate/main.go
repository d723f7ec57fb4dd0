package main

import (
	"os"

	"github.com/osvaldoandrade/storemigrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
