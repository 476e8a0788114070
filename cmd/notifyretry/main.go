package main

import (
	"os"

	"github.com/agencycrm/notify-engine/cmd/notifyretry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
