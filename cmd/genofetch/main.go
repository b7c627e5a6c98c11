package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/genofetch/internal/buildinfo"
	"github.com/dmitrijs2005/genofetch/internal/cli"
	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	app := cli.NewApp(cfg, logging.NewSlogLogger(
		slog.New(slog.NewTextHandler(os.Stderr, nil))))

	if err := app.Run(ctx, commandArgs(os.Args[1:])); err != nil {
		log.Fatalf("%v", err)
	}
}

// commandArgs drops everything before the command word so global config flags
// may come first on the command line.
func commandArgs(args []string) []string {
	for i, arg := range args {
		switch arg {
		case "download", "decrypt", "encrypt", "keygen":
			return args[i:]
		}
	}
	return args
}
