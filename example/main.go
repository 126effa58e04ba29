package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/imremote"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	var (
		addr             string
		port             int
		keyframeInterval uint64
		inputFrames      uint64
		sendInterval     int
		tick             time.Duration
		logLevel         string
	)

	rootCmd := &cobra.Command{
		Use:   "imremote-demo",
		Short: "Stream an animated test scene to a remote ImGui client",
		RunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return errors.Wrap(err, "log level")
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			remote, err := imremote.Init(ctx, addr, port, newScene(),
				imremote.RemoteLoggerOption(logger),
				imremote.WithSessionOptions(
					imremote.KeyframeIntervalOption(keyframeInterval),
					imremote.InputFramesOption(inputFrames),
					imremote.SendIntervalOption(sendInterval),
				),
			)
			if err != nil {
				return err
			}
			defer remote.Close()

			logger.Info("serving", "addr", remote.Addr())
			return run(ctx, remote, tick, logger)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&addr, "addr", "0.0.0.0", "address to bind")
	flags.IntVar(&port, "port", 7002, "port to bind")
	flags.Uint64Var(&keyframeInterval, "keyframe-interval", imremote.DefaultKeyframeInterval, "frames between forced keyframes")
	flags.Uint64Var(&inputFrames, "input-frames", imremote.DefaultInputFrames, "frames remote input stays valid")
	flags.IntVar(&sendInterval, "send-interval", imremote.DefaultSendInterval, "draw submissions skipped between sends")
	flags.DurationVar(&tick, "tick", time.Second/60, "render tick")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// run drives the render loop until ctx is done.
func run(ctx context.Context, remote *imremote.Remote, tick time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var (
		frame  int
		cursor [2]float32
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame++
		remote.Update()

		if in, ok := remote.ReadInput(); ok {
			if in.MousePos != cursor {
				logger.Debug("remote cursor", "x", in.MousePos[0], "y", in.MousePos[1], "buttons", in.MouseButtons)
			}
			cursor = in.MousePos
		}

		err := remote.SubmitFrame(sceneLists(frame, cursor))
		if err != nil && !errors.Is(err, imremote.ErrNotActive) {
			logger.Warn("submit frame", "error", err)
		}
	}
}

// scene is a stand-in for the UI library: a flat atlas and an echo of
// characters and clipboard text.
type scene struct {
	atlas []byte
}

func newScene() *scene {
	const size = 64
	atlas := make([]byte, size*size)
	for i := range atlas {
		atlas[i] = 0xff
	}
	return &scene{atlas: atlas}
}

func (s *scene) FontAtlas() ([]byte, int, int) {
	return s.atlas, 64, 64
}

func (s *scene) AddInputCharacter(c rune) {
	slog.Info("remote character", "char", string(c))
}

func (s *scene) SetClipboardText(text string) {
	slog.Info("remote clipboard", "text", text)
}

// sceneLists draws a circling quad and a marker under the remote cursor.
func sceneLists(frame int, cursor [2]float32) []imremote.DrawList {
	angle := float64(frame) / 60
	x := float32(320 + 200*math.Cos(angle))
	y := float32(240 + 150*math.Sin(angle))

	return []imremote.DrawList{
		quadList(x, y, 80, 0xff3080f0),
		quadList(cursor[0], cursor[1], 8, 0xffffffff),
	}
}

// quadList is two triangles of a size x size square centered on x, y.
func quadList(x, y, size float32, col uint32) imremote.DrawList {
	h := size / 2
	corners := [4][2]float32{{x - h, y - h}, {x + h, y - h}, {x + h, y + h}, {x - h, y + h}}
	vertices := make([]imremote.DrawVert, 0, 6)
	for _, i := range []int{0, 1, 2, 0, 2, 3} {
		vertices = append(vertices, imremote.DrawVert{Pos: corners[i], Col: col})
	}
	return imremote.DrawList{
		Commands: []imremote.DrawCmd{{VtxCount: 6, ClipRect: [4]float32{0, 0, 1920, 1080}}},
		Vertices: vertices,
	}
}
