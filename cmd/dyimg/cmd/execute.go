package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var errUsage = errors.New("usage")

// errFailed marks a run whose failure was already reported.
var errFailed = errors.New("failed")

func Execute() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(stderr, "ERROR:", err)
		}
		return 1
	}
	return 0
}
