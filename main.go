package main

import (
	"os"

	"gamepause/internal/cli"
)

func main() {
	setConsoleUTF8()
	os.Exit(cli.Execute(cli.Runtime{
		Run:   runController,
		Local: executeLocal,
	}))
}
