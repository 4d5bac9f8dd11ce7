package main

import (
	"log"

	"github.com/lohmander/brink-auth/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
