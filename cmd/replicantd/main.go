package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/roach88/replicant/internal/cli"
)

func main() {
	// glog registers on the default flag set; give it an empty parse so
	// cobra owns the real argument list.
	flag.CommandLine.Parse([]string{})
	defer glog.Flush()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(cli.GetExitCode(err))
	}
}
