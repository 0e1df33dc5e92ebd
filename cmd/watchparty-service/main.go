// Package main — точка входа watchparty-service (HTTP + WebSocket + gRPC).
package main

import (
	"log"

	"github.com/psds-microservice/watchparty-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
