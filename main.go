package main

import (
	"github.com/klmry/stockwatch/cmd"
)

func main() {
	cmd.Execute()
}
