package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/genofetch/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-w string   well-known-value service URL
//	-o string   output directory
//	-n int      max concurrent part downloads
//	-p int      part size in bytes
//	-r int      max retries per call
//	-t int      max staging wait in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-w", "-o", "-n", "-p", "-r", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.WKVSAPIURL, "w", cfg.WKVSAPIURL, "well-known-value service URL")
	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "output directory")
	fs.IntVar(&cfg.MaxConcurrentDownloads, "n", cfg.MaxConcurrentDownloads, "max concurrent part downloads")
	fs.Int64Var(&cfg.PartSize, "p", cfg.PartSize, "part size in bytes")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max retries per outbound call")
	maxWait := fs.Int("t", int(cfg.MaxWaitTime.Seconds()), "max staging wait (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.MaxWaitTime = time.Duration(*maxWait) * time.Second
}
