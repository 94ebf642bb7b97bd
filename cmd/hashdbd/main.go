// Command hashdbd runs the standalone key-value server: it opens (or
// creates) the log file, bootstraps the key directory from it, and serves
// clients over TCP until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kl4mm/hash-db/config"
	"github.com/kl4mm/hash-db/disk"
	"github.com/kl4mm/hash-db/dispatcher"
	"github.com/kl4mm/hash-db/keydir"
	"github.com/kl4mm/hash-db/pager"
	"github.com/kl4mm/hash-db/server"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("hashdbd exiting")
	}
}

func run() error {
	cfg, err := config.Parse(pflag.CommandLine, os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	log := logrus.StandardLogger()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	var d *disk.Disk
	if cfg.DBPath == "" {
		d = disk.OpenMemory(cfg.PageSize, cfg.DiskWorkers)
	} else {
		d, err = disk.Open(cfg.DBPath, cfg.PageSize, cfg.DiskWorkers)
		if err != nil {
			return fmt.Errorf("opening %s: %w", cfg.DBPath, err)
		}
	}
	defer d.Close()

	dir, current, currentID, err := keydir.Bootstrap(d, cfg.PageSize)
	if err != nil {
		return fmt.Errorf("bootstrapping key directory: %w", err)
	}
	log.WithFields(logrus.Fields{"keys": dir.Len(), "current_page": currentID}).Info("bootstrap complete")

	cache := pager.New(d, cfg.LRUK, current, currentID, cfg.ReadSlots)
	defer cache.Close()

	disp := dispatcher.New(cache, dir, logrus.NewEntry(log))
	srv := server.New(cfg.Addr, disp, cache, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	return srv.Serve(ctx)
}
