package main

import (
	"log"
	"net/http"
	"os"

	"github.com/woodsmokeheart/tracker/internal/config"
	"github.com/woodsmokeheart/tracker/internal/serverapp"
)

func main() {
	path := os.Getenv("TRACKER_CONFIG")
	if path == "" {
		path = "tracker.yml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := serverapp.New(serverapp.Options{
		Config: cfg,
		Logger: log.Default(),
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}
	defer srv.Close()

	log.Printf("tracker listening on %s", cfg.Server.Addr)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, srv.Handler))
}
