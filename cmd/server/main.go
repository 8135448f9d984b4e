package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/latticehq/lattice/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	srv := server.NewServer()
	defer srv.Log.Sync()

	if err := srv.Run(); err != nil {
		srv.Log.Fatal("server exited", "error", err)
	}
}
