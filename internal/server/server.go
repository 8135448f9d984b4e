package server

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/latticehq/lattice/internal/config"
	"github.com/latticehq/lattice/internal/core"
	"github.com/latticehq/lattice/internal/driver"
	"github.com/latticehq/lattice/internal/embedindex"
	"github.com/latticehq/lattice/internal/llm"
	"github.com/latticehq/lattice/internal/logger"
	"github.com/latticehq/lattice/internal/store"
)

type Server struct {
	Engine *core.Engine
	Config *config.Config
	Log    *logger.Logger
}

// NewServer wires the full stack from config: relational store, graph
// driver, LLM clients, embedding-index client, engine. Startup failures are
// fatal; a half-wired server is worse than none.
func NewServer() *Server {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("config file not loaded (%v), using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	baseLog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	st, err := store.Open(cfg.Postgres.DSN, baseLog)
	if err != nil {
		baseLog.Fatal("failed to open relational store", "error", err)
	}

	drv, err := driver.NewNeo4jDriver(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, baseLog)
	if err != nil {
		baseLog.Fatal("failed to connect to graph store", "uri", cfg.Neo4j.URI, "error", err)
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
		cfg.LLM.Model = "gpt-oss:latest"
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	llmClient, embedder, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		baseLog.Fatal("failed to initialize llm client", "provider", cfg.LLM.Provider, "error", err)
	}

	idx := embedindex.New(cfg.EmbedIndex.URL, cfg.EmbedIndex.TimeoutSeconds, baseLog)

	engine := core.NewEngine(st, drv, llmClient, embedder, idx, cfg, baseLog)
	if err := engine.BuildIndices(context.Background()); err != nil {
		baseLog.Warn("failed to build graph indices", "error", err)
	}

	return &Server{
		Engine: engine,
		Config: cfg,
		Log:    baseLog.With("component", "server"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	if s.Config.Server.Mode == "prod" || s.Config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/api/healthz", s.Healthz)

	api := r.Group("/api", s.RequireUser)
	{
		api.POST("/sessions/:id/reconcile", s.ReconcileSession)
		api.POST("/sessions/:id/speakers/:speakerId/assign", s.AssignSpeaker)
		api.POST("/sessions/:id/speakers/:speakerId/unassign", s.UnassignSpeaker)

		api.GET("/entities", s.ListEntities)
		api.GET("/entities/duplicates", s.ListDuplicates)
		api.POST("/entities/merge", s.MergeEntities)

		api.GET("/suggestions", s.ListSuggestions)
		api.POST("/suggestions", s.CreateSuggestion)
		api.POST("/suggestions/:id/approve", s.ApproveSuggestion)
		api.POST("/suggestions/:id/reject", s.RejectSuggestion)

		api.GET("/insights/co-occurrences", s.CoOccurrences)
		api.POST("/insights/collaborations", s.InferCollaborations)
	}

	return r
}

// Run starts the HTTP listener on the configured port.
func (s *Server) Run() error {
	r := s.SetupRouter()
	s.Log.Info("listening", "port", s.Config.Server.Port)
	return r.Run(":" + s.Config.Server.Port)
}
