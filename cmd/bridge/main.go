package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	meetingcore "github.com/meetingassist/meeting-core"
	"github.com/meetingassist/meeting-core/internal/jsoncodec"
)

// Config represents the bridge configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`

	Runtime struct {
		DataDir string `yaml:"data_dir"`
		LogDir  string `yaml:"log_dir"`
		Debug   bool   `yaml:"debug"`
	} `yaml:"runtime"`

	Events struct {
		ReplaySize int `yaml:"replay_size"`
	} `yaml:"events"`
}

func main() {
	configPath := "config/bridge.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	runtimeConfig, err := jsoncodec.Marshal(map[string]any{
		"dataDir": config.Runtime.DataDir,
		"logDir":  config.Runtime.LogDir,
		"debug":   config.Runtime.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to build runtime config: %v", err)
	}

	rt, err := meetingcore.New(string(runtimeConfig))
	if err != nil {
		log.Fatalf("Failed to create runtime: %v", err)
	}
	defer rt.Close()

	// Event hub
	hub := NewEventHub(config.Events.ReplaySize)
	rt.SetEventCallback(func(event string, payload []byte) {
		hub.Publish(event, payload)
	})

	// Metrics side listener
	go func() {
		addr := fmt.Sprintf(":%d", config.Metrics.Port)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("Metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 8 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Raw envelope pass-through: the body is the invoke request, the
	// response is whatever the runtime answered.
	app.Post("/invoke", func(c *fiber.Ctx) error {
		result := rt.InvokeJSON(string(c.Body()))
		c.Set("Content-Type", "application/json")
		return c.SendString(result)
	})

	// WebSocket event fan-out with replay for late subscribers
	app.Get("/ws/events", websocket.New(func(c *websocket.Conn) {
		handleEventSocket(hub, c)
	}))

	// Binary PCM16 frames in, forwarded into the live session
	app.Get("/ws/audio", websocket.New(func(c *websocket.Conn) {
		handleAudioSocket(rt, c)
	}))

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Bridge starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /invoke     - Runtime command channel")
	log.Println("   GET  /ws/events  - Runtime event stream")
	log.Println("   GET  /ws/audio   - Live session audio ingest")
	log.Println("   GET  /health     - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Bridge failed: %v", err)
	}
}

// handleEventSocket replays buffered events then streams live ones until
// the client goes away.
func handleEventSocket(hub *EventHub, c *websocket.Conn) {
	defer c.Close()

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	for _, frame := range sub.Replay {
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame, ok := <-sub.Ch:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleAudioSocket forwards binary PCM frames to the runtime. Text
// frames are ignored except "END", which closes the stream.
func handleAudioSocket(rt *meetingcore.Runtime, c *websocket.Conn) {
	defer c.Close()

	log.Println("Audio stream connected")
	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("Audio stream closed: %v", err)
			return
		}

		if messageType == websocket.TextMessage {
			if string(message) == "END" {
				return
			}
			continue
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		request, err := jsoncodec.Marshal(map[string]any{
			"command": "push_audio_chunk",
			"payload": map[string]string{
				"chunk": base64.StdEncoding.EncodeToString(message),
			},
		})
		if err != nil {
			continue
		}
		rt.InvokeJSON(string(request))
	}
}

// loadConfig loads configuration from a YAML file, falling back to
// defaults when the file does not exist.
func loadConfig(path string) (*Config, error) {
	config := &Config{}
	config.Server.Host = "127.0.0.1"
	config.Server.Port = 8790
	config.Metrics.Port = 9109
	config.Events.ReplaySize = 256

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(file, config); err != nil {
		return nil, err
	}
	return config, nil
}
