package main

import (
	"context"
	"os"
)

// main hands off to the cobra command tree. Wiring lives in app.go and
// business logic in internal services packages.
func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
