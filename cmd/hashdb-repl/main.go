// Command hashdb-repl is a read-eval-print loop that talks to the
// dispatcher directly, bypassing the TCP protocol entirely: prompt, read a
// line, execute it, print the result, repeat.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kl4mm/hash-db/config"
	"github.com/kl4mm/hash-db/disk"
	"github.com/kl4mm/hash-db/dispatcher"
	"github.com/kl4mm/hash-db/keydir"
	"github.com/kl4mm/hash-db/pager"
	"github.com/kl4mm/hash-db/protocol"
)

const prompt = "hashdb> "

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(pflag.CommandLine, os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

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

	cache := pager.New(d, cfg.LRUK, current, currentID, cfg.ReadSlots)
	defer cache.Close()

	disp := dispatcher.New(cache, dir, logrus.NewEntry(logrus.StandardLogger()))

	fmt.Println("hashdb repl. commands: insert <key> <value> | delete <key> | get <key>")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print(prompt)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			fmt.Print(prompt)
			continue
		}

		cmd, _, ok := protocol.Parse([]byte(line + "\n"))
		if !ok || cmd.Kind == protocol.KindIgnore {
			fmt.Println("unrecognised command")
			fmt.Print(prompt)
			continue
		}

		reply, err := disp.Execute(cmd)
		if err != nil {
			fmt.Println("error:", err)
		} else if reply == nil {
			fmt.Println("(nil)")
		} else {
			fmt.Print(string(reply))
		}

		if err := cache.FlushCurrent(); err != nil {
			fmt.Fprintln(os.Stderr, "flush error:", err)
		}

		fmt.Print(prompt)
	}

	fmt.Println()
	return scanner.Err()
}
