package main

import (
	"os"

	sserelaycmder "github.com/papercomputeco/sserelay/cmd/sserelay"
)

func main() {
	cmd := sserelaycmder.NewSSERelayCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
