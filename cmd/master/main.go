// Command master runs the task-dispatch master process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taskmesh/dispatch/interfaces/cli"
)

func main() {
	app := cli.NewMasterApp()

	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
