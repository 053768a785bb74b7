package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-agent-timeline/internal/core/agent"
	"github.com/penwyp/go-agent-timeline/internal/core/session"
	"github.com/penwyp/go-agent-timeline/internal/data/tail"
	"github.com/penwyp/go-agent-timeline/internal/data/transcript"
	"github.com/penwyp/go-agent-timeline/internal/presentation/render"
	"github.com/penwyp/go-agent-timeline/internal/util"
)

var (
	quietInterval time.Duration

	followCmd = &cobra.Command{
		Use:   "follow",
		Short: "Replay a session, then tail its transcript live",
		Long: `follow renders the session history and then keeps watching the transcript
files, streaming new turns into the timeline as they are written.

Press Ctrl+C to stop.`,
		RunE: runFollow,
	}
)

func init() {
	followCmd.Flags().DurationVar(&quietInterval, "quiet-interval", 0,
		"How long thinking persists with no activity before the status idles (0 = default)")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
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
	sess := session.New(env.sessionID, sink, directory, session.Config{QuietInterval: quietInterval})
	sess.LoadHistory(transcript.MergeChronological(conv), conv.AgentMetadata)

	transcriptsDir := filepath.Join(dataDir, transcript.EscapeProjectPath(env.project))
	follower, err := tail.NewFollower(transcriptsDir, env.sessionID)
	if err != nil {
		return fmt.Errorf("failed to start follower: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- follower.Run(ctx)
	}()

	util.LogInfof("following session %s", env.sessionID)
	for delta := range follower.Deltas() {
		sess.HandleDelta(delta)
	}
	sess.Close()

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
