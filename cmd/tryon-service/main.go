// Package main — точка входа tryon-service (HTTP + WebSocket relay).
package main

import (
	"log"

	"github.com/missland/tryon-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
