// Command boot loads a WebAssembly module and hands control to its entry point.
//
//	boot --location pkg/thoth_manager_bg.wasm --entry run_app
//	boot inspect --location https://cdn.example/app_bg.wasm
//	boot serve --dir static --port 8000
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, std streams) int {
	cmd := newRootCmd(std)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !reported(err) {
		printError(std.err, err)
	}
	return exitCode(err)
}
