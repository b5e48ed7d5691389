package main

import (
	"log"

	"github.com/joho/godotenv"

	"jobwire/cmd/internal/app"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
