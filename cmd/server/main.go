package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/improvlabs/sceneshow/internal/ai"
	"github.com/improvlabs/sceneshow/internal/ai/ollama"
	"github.com/improvlabs/sceneshow/internal/ai/openai"
	"github.com/improvlabs/sceneshow/internal/config"
	"github.com/improvlabs/sceneshow/internal/export"
	"github.com/improvlabs/sceneshow/internal/game"
	"github.com/improvlabs/sceneshow/internal/host"
	"github.com/improvlabs/sceneshow/internal/scenario"
	"github.com/improvlabs/sceneshow/internal/telemetry"
	"github.com/improvlabs/sceneshow/internal/ws"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`SceneShow - Voice-driven improv game show backend

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  DEFAULT_PROVIDER    AI provider: "openai" or "ollama" (default: openai)
  DEFAULT_MODEL       AI model to use (default: gpt-4o-mini)
  OPENAI_API_KEY      OpenAI API key (required for OpenAI provider)
  OPENAI_BASE_URL     Custom OpenAI API base URL (optional)
  OLLAMA_HOST         Ollama host URL (default: http://localhost:11434)
  HOST_PROMPT         System prompt for the host persona
  SCENARIO_SOURCE     "deck" (built-in) or "llm" (default: deck)
  SCENARIO_THEME      Optional theme for llm-generated scenarios
  MAX_ROUNDS          Rounds per show (default: 3)
  MAX_UTTERANCES      Utterances allowed per turn (default: 6)
  TURN_CEILING        Per-turn time ceiling (default: 45s)
  GENERATOR_TIMEOUT   Timeout on scenario/reaction calls (default: 15s)
  SESSION_GRACE       How long finished shows linger (default: 2m)
  END_CUES            Comma-separated end-of-scene phrases
  HANDOFF_CUES        Comma-separated relay handoff phrases
  EXPORT_ENABLED      Append finished shows to a results file (default: true)
  EXPORT_FILE         Path to the results file (default: ./sceneshow-results.txt)
  LOG_FILE            Optional JSON log file (rotated)
  TELEMETRY_DIR       Directory for trace/metric logs (default: logs)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("SceneShow %s\n", version)
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	// zerolog setup (human-friendly console, optional rotated JSON file)
	zerolog.TimeFieldFormat = time.RFC3339
	var sink io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		sink = zerolog.MultiLevelWriter(sink, rotated)
	}
	zerologlog.Logger = zerologlog.Output(sink)
	logger := zerologlog.Logger

	metrics, shutdownTelemetry, err := telemetry.Init(context.Background(), "sceneshow", version, cfg.TelemetryDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry init")
	}
	defer shutdownTelemetry()

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		logger.Info().Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})

	// Healthcheck
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// Providers
	var provider ai.Provider
	switch cfg.DefaultProvider {
	case "ollama":
		provider = ollama.New(cfg.OllamaHost)
	default:
		provider = openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	}

	newSupply := func() game.ScenarioSupply {
		deck := scenario.NewDeck(time.Now().UnixNano())
		if cfg.ScenarioSource == "llm" {
			return scenario.NewLLM(provider, cfg.DefaultModel, cfg.ScenarioTheme, deck)
		}
		return deck
	}

	var archive game.Archiver
	if cfg.ExportEnabled {
		archive = export.New(cfg.ExportFile)
	}

	sessionDefaults := game.SessionConfig{
		MaxRounds:     cfg.MaxRounds,
		MaxUtterances: cfg.MaxUtterances,
		TurnCeiling:   cfg.TurnCeiling,
		GenTimeout:    cfg.GenTimeout,
		EndCues:       cfg.EndCues,
		HandoffCues:   cfg.HandoffCues,
	}

	// Socket server + session registry
	sock := ws.New(logger, sessionDefaults)
	rm := game.NewRegistry(game.Deps{
		Reactor: host.New(provider, cfg.DefaultModel, cfg.HostPrompt),
		Emitter: sock,
		Archive: archive,
		Logger:  logger,
		Metrics: metrics,
	}, newSupply, cfg.SessionGrace)
	defer rm.Close()
	sock.SetRegistry(rm)
	sockSrv := sock.Mount(r)
	defer sockSrv.Close()

	// Minimal room API
	type createReq struct {
		Mode      string `json:"mode"`
		MaxRounds int    `json:"maxRounds"`
	}
	r.POST("/api/rooms", func(c *gin.Context) {
		var req createReq
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_config"})
			return
		}
		roomCfg := sessionDefaults
		if game.Mode(req.Mode) == game.ModeRelay {
			roomCfg.Mode = game.ModeRelay
		} else {
			roomCfg.Mode = game.ModeSolo
		}
		if req.MaxRounds > 0 {
			roomCfg.MaxRounds = req.MaxRounds
		}
		sess := rm.Create(roomCfg)
		c.JSON(http.StatusOK, gin.H{"room": sess.Code, "mode": sess.Mode})
	})
	r.GET("/api/rooms/:code", func(c *gin.Context) {
		sess, err := rm.Get(c.Param("code"))
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, sess.Snapshot())
	})

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
