package main

import (
	"log"

	"github.com/powerlab/powerlab/pkg/api"
)

func main() {
	if err := api.Serve(); err != nil {
		log.Fatal(err)
	}
}
