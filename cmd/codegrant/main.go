package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nativeoauth/codegrant/pkg/codegrant/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := cmd.DefaultConfig()
	cfg.Context = ctx
	root := cmd.NewRootCommand(cfg)
	root.SetArgs(args)
	return cmd.ExitCode(root.Execute())
}
