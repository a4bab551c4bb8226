package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ascmhl/mhl/cmd/mhl/internal/cli"
	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
)

// Version metadata. Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(cli.ExitFatal)
	}

	switch os.Args[1] {
	case "seal":
		os.Exit(handleSeal())
	case "check":
		os.Exit(handleCheck())
	case "record":
		os.Exit(handleRecord())
	case "validate":
		os.Exit(handleValidate())
	case "version", "--version", "-v":
		handleVersion()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`mhl
Commands:
  seal      [-f xxh64|md5|sha1] [-d] [path]
  check     [path]
  record    [-f xxh64|md5|sha1] <path> [path...]
  validate  <manifest-file>
  version   [-v|--version]`)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

func handleSeal() int {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	format := fs.String("f", string(hashformat.Default), "hash format (xxh64, md5, sha1)")
	dirHashes := fs.Bool("d", false, "compose directory hashes")
	historyDir := fs.String("history-dir", "", "override the history directory name")
	verbose := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(os.Args[2:])

	root := "."
	if args := fs.Args(); len(args) > 0 {
		root = args[0]
	}

	f, err := hashformat.Parse(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitFatal
	}

	return cli.HandleSeal(os.Stdout, newLogger(*verbose), cli.Config{}, cli.SealOptions{
		Root:            root,
		Format:          f,
		DirectoryHashes: *dirHashes,
		HistoryDirName:  *historyDir,
	})
}

func handleCheck() int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	historyDir := fs.String("history-dir", "", "override the history directory name")
	verbose := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(os.Args[2:])

	root := "."
	if args := fs.Args(); len(args) > 0 {
		root = args[0]
	}

	return cli.HandleCheck(os.Stdout, newLogger(*verbose), cli.CheckOptions{
		Root:           root,
		HistoryDirName: *historyDir,
	})
}

func handleRecord() int {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	format := fs.String("f", string(hashformat.Default), "hash format (xxh64, md5, sha1)")
	historyDir := fs.String("history-dir", "", "override the history directory name")
	verbose := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(os.Args[2:])

	args := fs.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "record: at least one path is required")
		return cli.ExitFatal
	}

	f, err := hashformat.Parse(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitFatal
	}

	return cli.HandleRecord(os.Stdout, newLogger(*verbose), cli.Config{}, cli.RecordOptions{
		Root:           ".",
		Paths:          args,
		Format:         f,
		HistoryDirName: *historyDir,
	})
}

func handleValidate() int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(os.Args[2:])

	args := fs.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "validate: a manifest file path is required")
		return cli.ExitFatal
	}

	return cli.HandleValidate(os.Stdout, newLogger(*verbose), args[0])
}

func handleVersion() {
	fmt.Printf("mhl %s (commit %s, built %s)\n", version, commit, date)
}
