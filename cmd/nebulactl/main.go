package main

import (
	"log"

	"github.com/nebulateam/nebula/cmd/nebulactl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
