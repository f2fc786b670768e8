// Command messenger serves the direct-messaging HTTP API.
package main

import (
	"log/slog"
	"os"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("server.exit", "err", err)
		os.Exit(1)
	}
}
