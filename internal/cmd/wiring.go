package cmd

import (
	"fmt"
	"os"

	"github.com/missioncontrol/missionctl/internal/config"
	"github.com/missioncontrol/missionctl/internal/greenbranch"
	"github.com/missioncontrol/missionctl/internal/logger"
	"github.com/missioncontrol/missionctl/internal/models"
	"github.com/missioncontrol/missionctl/internal/store"
	"github.com/missioncontrol/missionctl/internal/verify"
	"github.com/missioncontrol/missionctl/internal/worker"
	"github.com/missioncontrol/missionctl/internal/workspace"
)

// components bundles the core collaborators every mission-driving
// subcommand constructs the same way, so mission.go (the mission and
// start commands) and parallel.go share one wiring path instead of
// drifting copies.
type components struct {
	cfg            *config.Config
	store          *store.Store
	log            logger.Logger
	verifier       *verify.Runner
	pool           *workspace.Pool
	backend        *worker.Backend
	green          *greenbranch.Manager
	greenWorkspace string
	fileLog        *logger.FileLogger
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	home, err := config.GetMissionHome()
	if err != nil {
		return nil, fmt.Errorf("resolve mission home: %w", err)
	}
	return config.Load(home + "/config.yaml")
}

// buildComponents wires the Event Store, logger, verifier, workspace
// pool, worker backend, and Green-Branch Manager from cfg -- everything
// a mission run or a standalone parallel round needs before the Round
// Controller or Dispatcher itself is constructed.
func buildComponents(cfg *config.Config, verboseConsole bool) (*components, error) {
	dbPath, err := config.GetEventDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve event store path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	logDir, err := config.GetLogDir()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("resolve log directory: %w", err)
	}
	level := logger.ParseLevel(cfg.Logging.Level)
	fileLog, err := logger.NewFileLogger(logDir, level)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open file logger: %w", err)
	}
	consoleLevel := level
	if verboseConsole {
		consoleLevel = logger.LevelDebug
	}
	console := logger.NewConsoleLogger(os.Stdout, consoleLevel)
	log := &multiLogger{loggers: []logger.Logger{console, fileLog}}

	nodes := make([]models.VerificationNode, 0, len(cfg.Verification.Nodes))
	for _, n := range cfg.Verification.Nodes {
		nodes = append(nodes, models.VerificationNode{
			Kind:     models.VerificationNodeKind(n.Kind),
			Command:  n.Command,
			Required: n.Required,
			Weight:   n.Weight,
			Timeout:  n.Timeout,
		})
	}
	verifier := verify.New(nodes, cfg.Verification.FallbackCommand)

	poolDir, err := config.GetWorkspacePoolDir()
	if err != nil {
		st.Close()
		fileLog.Close()
		return nil, fmt.Errorf("resolve workspace pool dir: %w", err)
	}
	pool := workspace.New(cfg.Workspace.SourceRepo, poolDir, cfg.Workspace.MaxClones, cfg.Workspace.BaseBranch, cfg.Workspace.GreenBranch)
	backend := worker.NewNamed(pool, "local")

	greenWorkspace, err := config.GetWorkspacePoolDir()
	if err != nil {
		st.Close()
		fileLog.Close()
		return nil, fmt.Errorf("resolve green-branch workspace dir: %w", err)
	}
	greenWorkspacePath := greenWorkspace + "/green"
	green := greenbranch.New(greenbranch.Config{
		SourceRepo:      cfg.Workspace.SourceRepo,
		Workspace:       greenWorkspacePath,
		BaseBranch:      cfg.Workspace.BaseBranch,
		GreenBranch:     cfg.Workspace.GreenBranch,
		AutoPush:        cfg.GreenBranch.AutoPush,
		PushBatch:       cfg.GreenBranch.PushBatchSize,
		PushMode:        cfg.GreenBranch.PushMode,
		FixupCandidates: cfg.GreenBranch.FixupCandidates,
	}, verifier, verifier)

	if cfg.GreenBranch.PushMode == "pull_request" && cfg.GreenBranch.GitHubOwner != "" && cfg.GreenBranch.GitHubRepo != "" {
		if token := os.Getenv("MISSIONCTL_GITHUB_TOKEN"); token != "" {
			green.SetPublisher(greenbranch.NewGitHubPublisher(cfg.GreenBranch.GitHubOwner, cfg.GreenBranch.GitHubRepo, token))
		} else {
			log.Warn("green_branch.push_mode is pull_request but MISSIONCTL_GITHUB_TOKEN is unset; falling back to a direct push")
		}
	}

	return &components{
		cfg:            cfg,
		store:          st,
		log:            log,
		verifier:       verifier,
		pool:           pool,
		backend:        backend,
		green:          green,
		greenWorkspace: greenWorkspacePath,
		fileLog:        fileLog,
	}, nil
}

func (c *components) Close() {
	c.store.Close()
	c.fileLog.Close()
	c.pool.Cleanup()
}

// multiLogger fans a single Logger call out to every wrapped
// implementation, the same pattern the teacher's run.go uses to write
// to both the console and a run log simultaneously.
type multiLogger struct {
	loggers []logger.Logger
}

func (m *multiLogger) Debug(msg string, args ...any) {
	for _, l := range m.loggers {
		l.Debug(msg, args...)
	}
}

func (m *multiLogger) Info(msg string, args ...any) {
	for _, l := range m.loggers {
		l.Info(msg, args...)
	}
}

func (m *multiLogger) Warn(msg string, args ...any) {
	for _, l := range m.loggers {
		l.Warn(msg, args...)
	}
}

func (m *multiLogger) Error(msg string, args ...any) {
	for _, l := range m.loggers {
		l.Error(msg, args...)
	}
}
