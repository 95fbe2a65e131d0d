package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/voxagent/billing/scripts/internal"
)

// Command represents a script that can be run
type Command struct {
	Name        string
	Description string
	Run         func() error
}

var commands = []Command{
	{
		Name:        "generate-apikey",
		Description: "Generate a new API key for internal callers",
		Run:         internal.GenerateNewAPIKey,
	},
	{
		Name:        "generate-token",
		Description: "Issue a signed development JWT",
		Run:         internal.GenerateDevToken,
	},
	{
		Name:        "seed-usage",
		Description: "Publish synthetic usage events to the usage topic",
		Run:         internal.SeedUsageEvents,
	},
	{
		Name:        "verify-ledgers",
		Description: "Replay every credit ledger and report drift",
		Run:         internal.VerifyLedgers,
	},
}

func main() {
	var (
		listCommands bool
		cmdName      string
		userID       string
		workspaceID  string
		serviceID    string
		role         string
		count        int
	)

	flag.BoolVar(&listCommands, "list", false, "List all available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.StringVar(&userID, "user-id", "", "User ID for tokens and keys")
	flag.StringVar(&workspaceID, "workspace-id", "", "Workspace ID for operations")
	flag.StringVar(&serviceID, "service-id", "", "Service ID for seeded usage")
	flag.StringVar(&role, "role", "", "Global role of the issued token")
	flag.IntVar(&count, "count", 0, "Number of events to seed")

	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-20s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	if cmdName == "" {
		log.Fatal("Please specify a command to run using -cmd flag. Use -list to see available commands.")
	}

	// Set command-specific environment variables
	if userID != "" {
		os.Setenv("USER_ID", userID)
	}
	if workspaceID != "" {
		os.Setenv("WORKSPACE_ID", workspaceID)
	}
	if serviceID != "" {
		os.Setenv("SERVICE_ID", serviceID)
	}
	if role != "" {
		os.Setenv("ROLE", role)
	}
	if count > 0 {
		os.Setenv("EVENT_COUNT", fmt.Sprint(count))
	}

	for _, cmd := range commands {
		if cmd.Name == cmdName {
			if err := cmd.Run(); err != nil {
				log.Fatalf("Error running command %s: %v", cmdName, err)
			}
			return
		}
	}

	log.Fatalf("Unknown command: %s. Use -list to see available commands.", cmdName)
}
