package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/internal/accel"
	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/asr"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/coordinator"
	"github.com/clipforge/clipforge/internal/llm"
	"github.com/clipforge/clipforge/internal/media"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/segment"
	"github.com/clipforge/clipforge/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	env := "dev"
	if cfg.IsProduction() {
		env = "prod"
		gin.SetMode(gin.ReleaseMode)
	}
	log, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: env,
		File:        cfg.Log.File,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Media.WorkDir, 0o755); err != nil {
		return fmt.Errorf("cannot create work dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := pipeline.NewTaskStore(cfg.StoreTTL(), cfg.Store.MaxEntries, cfg.StoreReapInterval())
	store.StartReaper(ctx)

	processor := media.NewProcessor(cfg.Media.FFmpegPath, cfg.Media.WorkDir, int64(cfg.Media.MaxConcurrent))
	transcriber := asr.NewHTTPTranscriber(cfg.ASR.BaseURL, cfg.ASRTimeout())

	var aligner asr.Aligner
	if cfg.ASR.EnableAlignment {
		aligner = asr.NewHTTPAligner(cfg.ASR.AlignURL, cfg.ASRTimeout())
	}

	pool := accel.NewPool(cfg.Accelerators.Count, cfg.AcceleratorPoll(), cfg.AcceleratorWait(), nil)

	segmenters := make(map[string]*segment.Segmenter, len(cfg.LLM.Models))
	for _, m := range cfg.LLM.Models {
		client := llm.NewClient(llm.Options{
			BaseURL:     m.BaseURL,
			APIKey:      os.Getenv(m.APIKeyEnv),
			Model:       m.Model,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
			Timeout:     cfg.LLMTimeout(),
		})
		segmenters[m.Label] = segment.NewSegmenter(client, cfg.Segmentation)
	}

	coord := coordinator.New(coordinator.Options{
		Config:      cfg,
		Store:       store,
		Media:       processor,
		Transcriber: transcriber,
		Aligner:     aligner,
		Pool:        pool,
		Segmenters:  segmenters,
	})
	go coord.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      api.NewRouter(coord, transcriber),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", srv.Addr,
			"env", cfg.Server.Env,
			"accelerators", cfg.Accelerators.Count,
			"llm_models", len(cfg.LLM.Models))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}
