package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/iliyamo/kube-responder/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, server.ErrBind) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
