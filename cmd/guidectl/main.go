package main

import (
	"fmt"
	"os"

	"github.com/alexivanou/guide-offline/internal/cli"
	"github.com/alexivanou/guide-offline/internal/model"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", model.ErrorCode(err), err)
		os.Exit(1)
	}
}
