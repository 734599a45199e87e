package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", red("error: "+err.Error()))
		os.Exit(1)
	}
}
