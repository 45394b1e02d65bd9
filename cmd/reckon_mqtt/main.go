package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/dead_reckoning/internal/app"
	"github.com/relabs-tech/dead_reckoning/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	flag.Parse()

	log.Println("starting dead-reckoning live reckoner (MQTT samples → MQTT trajectory)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunLiveReckoner(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
