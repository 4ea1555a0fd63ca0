package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JoeShih716/go-versioned-ledger/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
