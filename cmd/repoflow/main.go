package main

import (
	"log"

	"github.com/repoflow/repoflow/cmd/repoflow/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
