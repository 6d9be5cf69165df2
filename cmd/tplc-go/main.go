package main

import (
	"fmt"
	"os"
)

func usage() {
	fmt.Println(`tplc-go - compile text templates into Go source
Usage: tplc-go <command> [flags]

Commands:
  compile   Compile every template under -in into -out
  watch     Compile, then recompile templates as they change
  help      Show help

Run 'tplc-go <command> -h' for the flags of a command.`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	var err error
	switch cmd {
	case "help", "-h", "--help":
		usage()
		return
	case "compile":
		err = runCompile(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		if err != errUsage {
			fmt.Fprintf(os.Stderr, "%s error: %v\n", cmd, err)
		}
		os.Exit(exitCode(err))
	}
}
