package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"emergency-dispatch-service/internal/app"
	"emergency-dispatch-service/internal/events"
	"emergency-dispatch-service/internal/models"
	"emergency-dispatch-service/internal/service/audio"
)

var (
	replayFile     string
	replayRealtime bool
	replayID       string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run one call from a WAV file",
	Long: `Replay a mono 16-bit WAV recording through the full pipeline:
segmentation, transcription, dialogue and speech output. Transcript
updates are printed as they happen and also reach any configured sinks.

The call ends when the recording ends or on Ctrl-C.

Examples:
  dispatch replay --file call.wav
  STT_PROVIDER=mock TTS_PROVIDER=none dispatch replay --file call.wav --realtime=false`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "WAV file to replay (required)")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", true, "pace frames like a live microphone")
	replayCmd.Flags().StringVar(&replayID, "id", "", "session id (default random)")
	_ = replayCmd.MarkFlagRequired("file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(replayFile); err != nil {
		return fmt.Errorf("replay file: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Audio.Source = "wav"
	cfg.Audio.WAVPath = replayFile

	application, err := app.New(ctx, cfg,
		app.WithSourceFactory(func(string) (audio.FrameSource, error) {
			return audio.NewWAVSource(replayFile, cfg.Audio.FrameDuration, replayRealtime, cfg.Audio.FrameQueue), nil
		}),
		app.WithSinks(printSink(cmd.OutOrStdout())),
	)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	if err := application.Start(); err != nil {
		return err
	}

	s, err := application.StartCall(ctx, replayID)
	if err != nil {
		return err
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		_ = application.EndCall(s.ID())
	}
	return s.Err()
}

// printSink writes each update as one transcript line.
func printSink(w io.Writer) events.Notifier {
	return events.NotifierFunc(func(_ context.Context, u models.TranscriptUpdate) error {
		_, err := fmt.Fprintf(w, "[%s] %-10s %s\n", u.Timestamp, u.Role, u.Message)
		return err
	})
}
