package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nammaroute/companion/internal/app"
	"github.com/nammaroute/companion/internal/assistant"
)

func newTalkCommand(ctx *commandContext) *cobra.Command {
	var (
		language string
		voice    string
		lat, lng float64
	)
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Talk to the assistant from this terminal until Ctrl+C",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := newApp(sigCtx, ctx.config, app.WithLogLevel(ctx.logLevel))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = application.Shutdown(shutdownCtx)
			}()

			a := application.Assistant()
			if language != "" {
				a.SetLanguage(language)
			}
			if voice != "" {
				a.SetVoice(voice)
			}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				a.SetLocation(lat, lng)
			}

			out := cmd.OutOrStdout()
			ended := make(chan assistant.Notice, 1)
			a.OnNotice(func(n assistant.Notice) {
				fmt.Fprintf(out, "» %s\n", n.Message)
				switch n.Kind {
				case assistant.NoticeRemoteClosed, assistant.NoticeTransportError, assistant.NoticeMicrophoneError:
					select {
					case ended <- n:
					default:
					}
				}
			})
			a.OnTranscript(func(t assistant.Transcript) {
				fmt.Fprintf(out, "%s: %s\n", t.Speaker, t.Text)
			})

			if err := a.Start(sigCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Listening. Press Ctrl+C to stop.")

			select {
			case <-sigCtx.Done():
				return a.Stop()
			case n := <-ended:
				if n.Err != nil {
					return n.Err
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "UI language for this session (en, ta, hi)")
	cmd.Flags().StringVar(&voice, "voice", "", "prebuilt voice name")
	cmd.Flags().Float64Var(&lat, "lat", 0, "current latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "current longitude")
	return cmd
}
