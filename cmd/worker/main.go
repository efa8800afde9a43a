// Command worker runs a task-dispatch worker process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taskmesh/dispatch/interfaces/cli"
)

func main() {
	app := cli.NewWorkerApp()

	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
