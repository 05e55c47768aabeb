package main

import (
	"fmt"
	"os"

	"github.com/wardenterm/warden/cmd/wardend/command"
)

func main() {
	if err := command.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
