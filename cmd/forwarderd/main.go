// Command forwarderd runs the forwarding workers without the dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/parvesh-spec/messageforwarder/internal/commands"
)

func main() {
	if len(os.Args) > 2 {
		fmt.Println("Usage: forwarderd [config.yaml]")
		fmt.Println("Example: forwarderd /etc/forwarder/config.yaml")
		os.Exit(1)
	}

	configFile := ""
	if len(os.Args) == 2 {
		configFile = os.Args[1]
	}

	if err := commands.RunWorker(configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
