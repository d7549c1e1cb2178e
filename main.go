package main

import (
	"os"

	"compose-migrate/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
