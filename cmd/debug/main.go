package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/light-controller/db"
	"github.com/thatsimonsguy/light-controller/internal/config"
	"github.com/thatsimonsguy/light-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, roomID, configFile string
	var limit int
	var retention time.Duration
	flag.StringVar(&dbPath, "db", "data/light-controller.db", "Path to the SQLite event ledger")
	flag.StringVar(&command, "cmd", "", "Command to run: list-events, prune, install-service")
	flag.StringVar(&roomID, "room", "", "Room ID to filter events by")
	flag.IntVar(&limit, "limit", db.DefaultEventLimit, "Number of events to list")
	flag.DurationVar(&retention, "retention", 720*time.Hour, "Keep events newer than this when pruning")
	flag.StringVar(&configFile, "config-file", "config.yaml", "Controller config file, for install-service")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of light-debug:")
		fmt.Println("  -db string\tPath to the SQLite event ledger (default 'data/light-controller.db')")
		fmt.Println("  -cmd string\tCommand to run: list-events, prune, install-service")
		fmt.Println("  -room string\tRoom ID to filter events by")
		fmt.Println("  -limit int\tNumber of events to list")
		fmt.Println("  -retention duration\tKeep events newer than this when pruning (default 720h)")
		fmt.Println("  -config-file string\tController config file, for install-service")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "list-events":
		err = db.ListEventsCLI(os.Stdout, dbPath, roomID, limit)
	case "prune":
		if retention <= 0 {
			fmt.Println("Error: retention must be positive")
			os.Exit(1)
		}
		err = db.PruneCLI(os.Stdout, dbPath, retention)
	case "install-service":
		var cfg *config.Config
		cfg, err = config.LoadFile(configFile)
		if err == nil {
			err = startup.InstallService(cfg.Service)
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
