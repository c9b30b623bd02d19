package main

import (
	"fmt"
	"os"

	"github.com/MammaMiaTeam/Fireflower"
	flag "github.com/ogier/pflag"
)

const verbose_text = "If true, be verbose."

var verbose = flag.BoolP("verbose", "d", false, verbose_text)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ffc [-d] <config.json>")
		os.Exit(-1)
	}

	if err := fireflower.Build(flag.Arg(0), *verbose); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}
