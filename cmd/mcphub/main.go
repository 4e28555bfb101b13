package main

import (
	"os"

	"github.com/jg-phare/mcphub/cmd/mcphub/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
