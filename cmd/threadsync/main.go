// Command threadsync follows a feedback discussion thread in real time.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

var version = "dev"

// ARCHITECTURAL DISCOVERY: main only maps the error to an exit code so run stays
// testable with injected streams and a cancellable context
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "threadsync:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
