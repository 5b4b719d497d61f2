// Command dispatch runs the emergency dispatch voice agent.
//
// Usage:
//
//	dispatch [flags] <command>
//
// Commands:
//
//	serve    - HTTP, websocket, admin and gRPC health servers
//	replay   - run one call from a WAV file
//	watch    - print transcript updates from Kafka
//	devices  - list audio devices
package main

import (
	"fmt"
	"os"

	"emergency-dispatch-service/cmd/dispatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
