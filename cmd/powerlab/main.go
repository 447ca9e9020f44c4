package main

import (
	"github.com/powerlab/powerlab/pkg/cli"
)

func main() {
	cli.Execute()
}
