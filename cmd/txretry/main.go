package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/vvka-141/txretry/internal/cli"
	"github.com/vvka-141/txretry/pkg/txretry"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(txretry.ExitPanic)
		}
	}()

	if os.Getenv("TXRETRY_TEST_PANIC") == "1" {
		panic("intentional test panic")
	}

	if err := cli.Execute(); err != nil {
		os.Exit(txretry.ExitCodeForError(err))
	}
}
