package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/posteravatar/internal/config"
	"github.com/normanking/posteravatar/internal/llm"
	"github.com/normanking/posteravatar/internal/server"
	"github.com/normanking/posteravatar/internal/tts"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signalContext()
			defer stop()
			return newChatServer(cfg, zlog()).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// newChatServer wires the completion and speech providers into the API server.
func newChatServer(c *config.Config, logger zerolog.Logger) *server.Server {
	if c.LLM.APIKey == "" {
		component("llm").Warn().Msg("no LLM API key configured; every chat request will fail with the fallback reply")
	}
	return server.New(c.Server, llm.NewClient(c.LLM), newSpeech(c.TTS, logger), logger)
}

// newSpeech returns the configured synthesizer, or nil when speech is disabled.
func newSpeech(c config.TTSConfig, logger zerolog.Logger) tts.Synthesizer {
	if c.Provider != "openai" {
		return nil
	}
	p := tts.NewOpenAIProvider(c, logger)
	if !p.IsAvailable() {
		component("tts").Warn().Msg("no TTS API key configured; replies will have no audio")
		return nil
	}
	if c.CacheEnabled {
		return tts.NewCachedSynthesizer(p, c.CacheTTL)
	}
	return p
}
