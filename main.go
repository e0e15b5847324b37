package main

import (
	"github.com/arbordb/arbor/cmd"
)

func main() {
	cmd.Execute()
}
