package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/session"
	"github.com/penwyp/go-agent-timeline/internal/data/transcript"
	"github.com/penwyp/go-agent-timeline/internal/presentation/render"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

var (
	// Logging related
	debug bool

	// Data paths
	dataDir     string
	projectPath string
	sessionID   string

	rootCmd = &cobra.Command{
		Use:   "agent-timeline [flags]",
		Short: "Unified timeline viewer for multi-agent conversations",
		Long: `agent-timeline merges the main agent stream and all subagent streams of a
conversation into one linear timeline.

Subagent activity is bracketed by context markers, consecutive turns by the
same speaker are grouped, and tool invocations are reconciled with their
results in place.

Examples:
  agent-timeline                                  # Replay the latest session of the current project
  agent-timeline --session 7f3a…                  # Replay a specific session
  agent-timeline --project /path/to/project       # Replay another project's latest session
  agent-timeline follow                           # Replay, then tail the live transcript`,
		RunE: runReplay,
	}
)

const (
	defaultLogFile = "~/.agent-timeline/logs/app.log"
	defaultDataDir = "~/.claude/projects"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", defaultDataDir,
		"Transcript projects directory path")
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "",
		"Project path (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "",
		"Session identifier (defaults to the most recent session)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
}

func runReplay(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}

	conv, err := env.reader.ReadConversation(env.project, env.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	directory := agent.NewDirectory()
	sink := render.NewTerminalSink(os.Stdout, directory)
	sess := session.New(env.sessionID, sink, directory, session.Config{})
	sess.LoadHistory(transcript.MergeChronological(conv), conv.AgentMetadata)
	sess.Close()
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}

// replayEnv is the resolved runtime environment shared by replay and follow.
type replayEnv struct {
	reader    *transcript.Reader
	project   string
	sessionID string
}

// setup initializes logging, resolves paths and picks the target session.
func setup() (*replayEnv, error) {
	logLevel := "info"
	if debug {
		logLevel = "debug"
	}
	logFile := expandPath(defaultLogFile)
	if err := ensureDir(filepath.Dir(logFile)); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	util.InitLogger(logLevel, logFile, debug)

	dataDir = expandPath(dataDir)
	project := projectPath
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine current directory: %w", err)
		}
		project = cwd
	}
	project = expandPath(project)

	reader := transcript.NewReader(dataDir)
	sid := sessionID
	if sid == "" {
		sessions, err := reader.ListSessions(project)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, fmt.Errorf("no sessions found for project %s", project)
		}
		sid = sessions[0].SessionID
		util.LogInfof("using latest session %s", sid)
	}

	return &replayEnv{reader: reader, project: project, sessionID: sid}, nil
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
