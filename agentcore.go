// Package agentcore assembles the agent orchestration core: the channel
// router, continuation evaluator, agent runtime, and orchestrator, wired
// from a single YAML configuration.
package agentcore

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentcore-dev/agentcore/internal/agent"
	"github.com/agentcore-dev/agentcore/internal/channel"
	"github.com/agentcore-dev/agentcore/internal/continuation"
	"github.com/agentcore-dev/agentcore/internal/orchestrator"
	"github.com/agentcore-dev/agentcore/pkg/config"
	"github.com/agentcore-dev/agentcore/pkg/llm"
	"github.com/agentcore-dev/agentcore/pkg/observability"
)

// FileReader interface for reading files (testable)
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using os.ReadFile
type OSFileReader struct{}

func (r *OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 - path is from trusted CLI input
}

// ConfigLoader loads configuration from a file
type ConfigLoader struct {
	fileReader FileReader
}

// NewConfigLoader creates a new config loader
func NewConfigLoader(fr FileReader) *ConfigLoader {
	return &ConfigLoader{fileReader: fr}
}

// LoadConfig loads, parses, and validates a config file
func (cl *ConfigLoader) LoadConfig(configPath string) (*config.Config, error) {
	data, err := cl.fileReader.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// System is the assembled orchestration core.
type System struct {
	cfg   *config.Config
	store channel.Store

	Router       *channel.Router
	Orchestrator *orchestrator.Orchestrator
	Janitor      *channel.Janitor
}

// NewSystem builds the core from configuration: channel storage (memory
// or redis), router, continuation evaluator, runtime, orchestrator, and
// the agents declared in the config.
func NewSystem(cfg *config.Config) (*System, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	router := channel.NewRouter(store)

	eval := continuation.NewEvaluator(continuation.Policy{
		RequireExplicit: cfg.Continuation.RequireExplicit == nil || *cfg.Continuation.RequireExplicit,
		MaxIterations:   cfg.Continuation.MaxIterations,
	})
	runtime := agent.NewRuntime(router, eval, nil)

	orch := orchestrator.New(runtime, orchestrator.Options{
		MaxHops:       cfg.Mail.MaxHops,
		SwitchTimeout: cfg.Mail.SwitchTimeout.Duration,
	})

	sys := &System{
		cfg:          cfg,
		store:        store,
		Router:       router,
		Orchestrator: orch,
		Janitor:      channel.NewJanitor(router, cfg.Channels.Retention.Duration),
	}

	for _, def := range cfg.Agents {
		if err := sys.createAgent(def); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = sys.Shutdown(shutdownCtx)
			cancel()
			return nil, err
		}
	}
	return sys, nil
}

// DefaultVisibility is the per-session visibility the configuration asks
// for. Callers apply it when opening a session.
func (s *System) DefaultVisibility() channel.Visibility {
	return channel.Visibility{
		ShowCommentary: s.cfg.Channels.ShowCommentary == nil || *s.cfg.Channels.ShowCommentary,
		ShowAnalysis:   s.cfg.Channels.ShowAnalysis,
	}
}

// Shutdown stops the janitor, the agents, and the channel store.
func (s *System) Shutdown(ctx context.Context) error {
	s.Janitor.Stop()
	if err := s.Orchestrator.Shutdown(ctx); err != nil {
		return err
	}
	return s.store.Close()
}

func (s *System) createAgent(def config.AgentDef) error {
	modelCfg := llm.Config{
		Provider:    firstNonEmpty(def.Provider, s.cfg.Provider),
		Model:       firstNonEmpty(def.Model, s.cfg.Model),
		Temperature: def.Temperature,
		MaxTokens:   def.MaxTokens,
		APIKey:      s.cfg.OpenAIKey,
		Extra: map[string]any{
			"project":  s.cfg.GCPProject,
			"location": s.cfg.GCPLocation,
		},
	}
	if modelCfg.Temperature == 0 {
		modelCfg.Temperature = s.cfg.Temperature
	}
	if modelCfg.MaxTokens == 0 {
		modelCfg.MaxTokens = s.cfg.MaxTokens
	}

	collab, err := llm.NewCollaborator(modelCfg)
	if err != nil {
		return fmt.Errorf("failed to create agent %s: %w", def.ID, err)
	}
	collab = llm.RateLimited(collab, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst)

	if _, err := s.Orchestrator.CreateAgentWith(def.ID, collab); err != nil {
		return err
	}
	log.Printf("Created agent: %s (provider: %s, model: %s)", def.ID, modelCfg.Provider, collab.Model())
	return nil
}

func buildStore(cfg *config.Config) (channel.Store, error) {
	switch cfg.Channels.Storage {
	case "redis":
		store, err := channel.NewRedisStore(channel.RedisConfig{
			Addr:       cfg.Channels.Redis.Addr,
			Password:   cfg.Channels.Redis.Password,
			DB:         cfg.Channels.Redis.DB,
			HistoryCap: cfg.Channels.HistoryCap,
			TTL:        cfg.Channels.Retention.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect channel storage: %w", err)
		}
		return store, nil
	default:
		return channel.NewMemoryStore(cfg.Channels.HistoryCap), nil
	}
}

// Run starts the orchestration core from a config file and blocks until
// an interrupt.
func Run(configPath string) error {
	loader := NewConfigLoader(&OSFileReader{})
	cfg, err := loader.LoadConfig(configPath)
	if err != nil {
		return err
	}
	return RunWithConfig(cfg)
}

// RunWithConfig starts the orchestration core with the provided config
// and blocks until SIGINT/SIGTERM.
func RunWithConfig(cfg *config.Config) error {
	if err := observability.InitTracingFromEnv(); err != nil {
		log.Printf("Warning: failed to initialize tracing: %v", err)
	}

	sys, err := NewSystem(cfg)
	if err != nil {
		return err
	}

	var obsServer *observability.Server
	if cfg.Observability.MetricsEnabled {
		observability.InitMetrics()
		checker := observability.InitHealthChecker()
		checker.RegisterCheck(observability.PingCheck())
		checker.RegisterCheck(observability.AgentRegistryCheck(sys.Orchestrator.AgentCount, 0))
		if rs, ok := sys.store.(*channel.RedisStore); ok {
			checker.RegisterCheck(observability.StorageCheck(rs.Ping))
		}

		obsServer = observability.NewServer(cfg.Observability.Port)
		go func() {
			if err := obsServer.Start(); err != nil {
				log.Printf("observability server stopped: %v", err)
			}
		}()
	}

	if err := sys.Janitor.Start(cfg.Channels.CleanupSchedule); err != nil {
		log.Printf("Warning: failed to start channel janitor: %v", err)
	}

	log.Printf("agentcore running with %d agents. Press Ctrl+C to stop.", sys.Orchestrator.AgentCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: failed to shutdown observability server: %v", err)
		}
	}
	if err := observability.ShutdownTracing(shutdownCtx); err != nil {
		log.Printf("Warning: failed to shutdown tracing: %v", err)
	}
	return sys.Shutdown(shutdownCtx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
