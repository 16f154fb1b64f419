package main

import (
	"os"

	"github.com/helioptic/kernelpool/cmd/kernelctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
