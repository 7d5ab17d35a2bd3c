// Command liveclient is an interactive terminal client for live multimodal
// conversations: it streams microphone audio to the model, plays the model's
// speech, and accepts text turns and capture commands from stdin.
//
// Run with:
//
//	export GEMINI_API_KEY=your-key
//	go run ./cmd/liveclient -config liveclient.yaml
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/auralis-ai/geminilive/client"
	"github.com/auralis-ai/geminilive/config"
	"github.com/auralis-ai/geminilive/events"
	"github.com/auralis-ai/geminilive/logger"
	"github.com/auralis-ai/geminilive/metrics"
	"github.com/auralis-ai/geminilive/transcription"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration (optional)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	logger.SetVerbose(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exporter *metrics.Exporter
	if cfg.MetricsAddr != "" {
		exporter = metrics.NewExporter(cfg.MetricsAddr)
		go func() {
			if err := exporter.Start(); err != nil {
				logger.Warn("metrics exporter stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = exporter.Shutdown(shutdownCtx)
		}()
	}

	c, err := client.New(cfg,
		client.WithTranscriptionForwarder(transcription.NewWriter(os.Stdout)),
	)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	subscribe(c)

	fmt.Println("Connecting...")
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("Session %s active.\n", c.SessionID())

	if err := c.Initialize(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	fmt.Println("Speak into the microphone, or type a message and press Enter.")
	fmt.Println("Commands: /mute  /camera  /screen  /stopscreen  /gain <0..2>  /quit")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	lines := readLines()

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return c.Disconnect()
		case line, ok := <-lines:
			if !ok {
				return c.Disconnect()
			}
			if done := handleLine(ctx, c, line); done {
				return c.Disconnect()
			}
		}
	}
}

// subscribe wires terminal output to session events. Transcriptions are
// handled by the forwarder, not here.
func subscribe(c *client.Client) {
	c.Events().Subscribe(events.KindText, func(e *events.Event) {
		fmt.Printf("model: %s\n", e.Text)
	})
	c.Events().Subscribe(events.KindInterrupted, func(_ *events.Event) {
		fmt.Println("[interrupted]")
	})
	c.Events().Subscribe(events.KindTurnComplete, func(_ *events.Event) {
		fmt.Println("[turn complete]")
	})
	c.Events().Subscribe(events.KindToolCall, func(e *events.Event) {
		for _, call := range e.ToolCalls {
			fmt.Printf("[tool call: %s]\n", call.Name)
		}
	})
	c.Events().Subscribe(events.KindScreenshareStopped, func(_ *events.Event) {
		fmt.Println("[screen share ended]")
	})
}

func handleLine(ctx context.Context, c *client.Client, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch {
	case line == "/quit":
		return true
	case line == "/mute":
		if c.ToggleMic() {
			fmt.Println("[microphone muted]")
		} else {
			fmt.Println("[microphone live]")
		}
	case line == "/camera":
		if err := c.StartCameraCapture(ctx); err != nil {
			fmt.Printf("camera: %v\n", err)
		} else {
			fmt.Println("[camera on]")
		}
	case line == "/screen":
		if err := c.StartScreenShare(ctx); err != nil {
			fmt.Printf("screen: %v\n", err)
		} else {
			fmt.Println("[screen share on]")
		}
	case line == "/stopscreen":
		c.StopScreenShare()
	case strings.HasPrefix(line, "/gain "):
		var gain float64
		if _, err := fmt.Sscanf(line, "/gain %f", &gain); err != nil {
			fmt.Println("usage: /gain <0..2>")
		} else {
			c.SetGain(gain)
		}
	default:
		if err := c.SendText(line); err != nil {
			fmt.Printf("send: %v\n", err)
		}
	}
	return false
}

func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
