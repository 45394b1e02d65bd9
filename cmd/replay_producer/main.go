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

	log.Println("starting dead-reckoning replay producer (sensor log → MQTT)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// optional positional sensor log, else INPUT_PATH
	if err := app.RunReplayProducer(flag.Arg(0)); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
