package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/posteravatar/internal/animation"
	"github.com/normanking/posteravatar/internal/asset"
	"github.com/normanking/posteravatar/internal/audio"
	"github.com/normanking/posteravatar/internal/bus"
	"github.com/normanking/posteravatar/internal/chat"
	"github.com/normanking/posteravatar/internal/config"
	"github.com/normanking/posteravatar/internal/logging"
	"github.com/normanking/posteravatar/internal/renderer"
	"github.com/normanking/posteravatar/internal/stream"
	"github.com/normanking/posteravatar/internal/viewer"
)

func viewCmd() *cobra.Command {
	var (
		model      string
		background string
		withServer bool
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Open the character viewer and chat from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if model != "" {
				cfg.Viewer.ModelURL = model
			}
			if background != "" {
				cfg.Viewer.BackgroundURL = background
			}
			return runViewer(cfg, log, withServer)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "character .glb/.gltf path or URL")
	cmd.Flags().StringVar(&background, "background", "", "background image path or URL")
	cmd.Flags().BoolVar(&withServer, "serve", false, "also run the chat API in this process")
	return cmd
}

// modelSwitch hands a new model URL from the console to the render loop.
type modelSwitch struct {
	mu     sync.Mutex
	next   string
	cancel context.CancelFunc
}

func (m *modelSwitch) request(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = url
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *modelSwitch) bind(cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = cancel
}

func (m *modelSwitch) take() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := m.next
	m.next = ""
	return url, url != ""
}

func runViewer(c *config.Config, logs *logging.Logger, withServer bool) error {
	ctx, stop := signalContext()
	defer stop()

	logger := logs.Zerolog()
	cli := logs.Component("cli")

	events := bus.NewEventBus()
	events.SubscribeAll(func(e bus.Event) {
		cli.Debug().Str("event", string(e.Type)).Uint64("seq", e.Seq).Msg("bus event")
	})

	if withServer {
		go func() {
			if err := newChatServer(c, logger).Run(ctx); err != nil {
				cli.Error().Err(err).Msg("chat API stopped")
			}
		}()
	}

	if c.Stream.Enabled {
		hub := stream.NewHub(c.Stream.Addr, logger)
		hub.Attach(events)
		hub.AttachLog(logs)
		go func() {
			if err := hub.Run(ctx); err != nil {
				cli.Error().Err(err).Msg("overlay stream stopped")
			}
		}()
	}

	orch := chat.NewOrchestrator(chat.Options{
		Client:        chat.NewHTTPClient(c.Chat.Endpoint, c.Chat.Timeout),
		Audio:         audio.NewPlayer(c.Chat.SampleRate, nil, logger),
		Bus:           events,
		Logger:        logger,
		HistoryWindow: c.Chat.HistoryWindow,
	})
	defer orch.Close()

	switcher := &modelSwitch{}
	con := newConsole(os.Stdout, orch, logs, switcher.request, stop)
	orch.OnTranscript(con.showTranscript)
	fmt.Fprintln(os.Stdout, consoleHelp)
	go con.run(ctx, os.Stdin)

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()

	loader := asset.NewLoader(nil, logger)
	modelURL := c.Viewer.ModelURL
	for {
		if err := runSession(ctx, c, modelURL, loader, orch, events, switcher, logger); err != nil {
			return err
		}
		next, ok := switcher.take()
		if !ok || ctx.Err() != nil {
			return nil
		}
		cli.Info().Str("model", next).Msg("switching character")
		modelURL = next
	}
}

// runSession opens a window for one character and renders until the window closes,
// ctx ends or a model switch is requested.
func runSession(
	ctx context.Context,
	c *config.Config,
	modelURL string,
	loader *asset.Loader,
	orch *chat.Orchestrator,
	events *bus.EventBus,
	switcher *modelSwitch,
	logger zerolog.Logger,
) error {
	rend, err := renderer.New(renderer.Config{
		Width:     c.Viewer.Width,
		Height:    c.Viewer.Height,
		Title:     c.Viewer.Title,
		VSync:     c.Viewer.VSync,
		MSAA:      c.Viewer.MSAA,
		ShaderDir: c.Viewer.ShaderDir,
	}, logger)
	if err != nil {
		return err
	}

	scfg := viewer.DefaultConfig(modelURL)
	scfg.BackgroundURL = c.Viewer.BackgroundURL
	scfg.TargetSize = c.Viewer.TargetSize
	scfg.Crossfade = c.Viewer.Crossfade
	scfg.StartupDelay = c.Viewer.StartupDelay
	scfg.FrameInterval = c.Viewer.FrameInterval

	sess := viewer.New(rend, loader, scfg, logger)
	sess.OnStatus(func(st viewer.Status) {
		events.Publish(bus.Event{Type: bus.EventTypeViewerStatus, Data: map[string]any{
			"loaded":           st.Loaded,
			"progress":         st.Progress,
			"error":            st.Error,
			"modelUrl":         st.ModelURL,
			"backgroundLoaded": st.BackgroundLoaded,
		}})
		if st.Error != "" {
			fmt.Fprintf(os.Stdout, "(%s)\n", st.Error)
		}
	})
	sess.OnClipChange(func(cat animation.Category, clip string) {
		events.Publish(bus.Event{Type: bus.EventTypeClipChanged, Data: map[string]any{
			"category": string(cat),
			"clip":     clip,
		}})
	})

	orch.OnMood(sess.SetMood)
	sess.SetMood(orch.Mood())
	defer orch.OnMood(nil)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	switcher.bind(cancel)
	defer switcher.bind(nil)

	return sess.Run(sessCtx)
}
