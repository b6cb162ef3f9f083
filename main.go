package main

import (
	"log"
	"os"

	"reading-club-system/commands"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}
