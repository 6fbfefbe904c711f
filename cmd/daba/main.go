// Copyright 2024 The daba Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Daba builds, inspects and serves daba tables.
//
// Usage:
//
//	daba build -data t.data -index t.index [-prehash] [-version n] < pairs.txt
//	daba get   -data t.data -index t.index [-prehash] key...
//	daba info  -data t.data -index t.index
//	daba serve -data t.data -index t.index [-addr :6380] [-prehash] [-mlock]
//
// Input to build is one pair per line, "key:value", where key is 32 hex
// characters (or any identifier without ':' when -prehash is set).  gen-testdata
// produces input in this format.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

type command struct {
	name  string
	usage string
	run   func(args []string, logger *slog.Logger) error
}

var commands = []command{
	{"build", "build a table from key:value lines on stdin", runBuild},
	{"get", "look up keys in a table", runGet},
	{"info", "print a table's headers and digests", runInfo},
	{"serve", "serve a table over TCP", runServe},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: daba <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-6s %s\n", c.name, c.usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(args, nil); err != nil {
			fmt.Fprintf(os.Stderr, "daba %s: %s\n", name, err)
			os.Exit(1)
		}
		return
	}
	usage()
	os.Exit(2)
}

// tableFlags are shared by every command that operates on a table.
type tableFlags struct {
	fs        *flag.FlagSet
	dataPath  *string
	indexPath *string
	verbose   *bool
}

func newTableFlags(name string) tableFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return tableFlags{
		fs:        fs,
		dataPath:  fs.String("data", "", "path to the data file"),
		indexPath: fs.String("index", "", "path to the index file (default: data path with .index appended)"),
		verbose:   fs.Bool("v", false, "log debug output"),
	}
}

// parse parses args and returns the logger they select.  logger, if
// non-nil, overrides it.
func (f tableFlags) parse(args []string, logger *slog.Logger) (*slog.Logger, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	if *f.dataPath == "" {
		return nil, fmt.Errorf("-data is required")
	}
	if *f.indexPath == "" {
		*f.indexPath = *f.dataPath + ".index"
	}
	if logger != nil {
		return logger, nil
	}
	level := slog.LevelInfo
	if *f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
