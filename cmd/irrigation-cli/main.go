package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/karpada/irrigation-console/internal/gateway"
)

// Small operational CLI for talking to a device directly, without running the
// console: inspect config and status, pause schedules, trigger ad-hoc runs.
func main() {
	var deviceURL, command, outFile string
	var zoneID, durationSec int
	flag.StringVar(&deviceURL, "device", "", "Device base URL, e.g. http://192.168.1.50")
	flag.StringVar(&command, "cmd", "", "Command to run: show-config, backup, status, pause, adhoc, stop-adhoc")
	flag.StringVar(&outFile, "out", "irrigation-config.json", "Output file for backup")
	flag.IntVar(&zoneID, "zone", 0, "Zone index for adhoc")
	flag.IntVar(&durationSec, "duration", 0, "Duration in seconds for pause/adhoc")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" || deviceURL == "" {
		fmt.Println("\nUsage of irrigation-cli:")
		fmt.Println("  -device string\tDevice base URL (required)")
		fmt.Println("  -cmd string\tCommand to run: show-config, backup, status, pause, adhoc, stop-adhoc")
		fmt.Println("  -out string\tOutput file for backup (default 'irrigation-config.json')")
		fmt.Println("  -zone int\tZone index for adhoc")
		fmt.Println("  -duration int\tDuration in seconds for pause/adhoc")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	client, err := gateway.New(deviceURL, 10*time.Second)
	if err != nil {
		fail(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command {
	case "show-config":
		doc, err := client.Fetch(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(doc)
	case "backup":
		doc, err := client.Fetch(ctx)
		if err != nil {
			fail(err)
		}
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			fail(err)
		}
		if err := os.WriteFile(outFile, raw, 0644); err != nil {
			fail(err)
		}
		fmt.Printf("wrote %s\n", outFile)
	case "status":
		st, err := client.Status(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(st)
	case "pause":
		if err := client.Pause(ctx, durationSec); err != nil {
			fail(err)
		}
		fmt.Printf("paused schedules for %d seconds\n", durationSec)
	case "adhoc":
		if err := client.RunAdhoc(ctx, zoneID, durationSec); err != nil {
			fail(err)
		}
		fmt.Printf("started ad-hoc run of zone %d for %d seconds\n", zoneID, durationSec)
	case "stop-adhoc":
		if err := client.RunAdhoc(ctx, zoneID, 0); err != nil {
			fail(err)
		}
		fmt.Printf("stopped ad-hoc run of zone %d\n", zoneID)
	default:
		fail(fmt.Errorf("unknown command: %s", command))
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
