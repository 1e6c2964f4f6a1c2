package main

import (
	"github.com/blockflow-dev/indexer/cmd"
)

func main() {
	cmd.Execute()
}
