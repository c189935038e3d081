// mbox-split explodes an mbox export of sent mail into one RFC 5322 file per
// message, producing a directory voicepackd can serve records from.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mailsense/voicepack/internal/source"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := source.SplitMbox(ctx, cfg.InputPath, cfg.OutputDir, source.SplitMboxOptions{
		OverwriteExisting: cfg.Overwrite,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "messages_written=%d bytes_written=%d out_dir=%s\n",
		res.MessagesWritten, res.BytesWritten, cfg.OutputDir)
}
