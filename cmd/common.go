package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smartnotes/internal/config"
	"smartnotes/internal/notes"
	"smartnotes/internal/ocr"
	"smartnotes/internal/session"
)

// loadConfig reads the configuration from the environment.
var loadConfig = config.Load

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// activeStore is the notes store of the current session.
type activeStore struct {
	state  session.State
	userID string
	store  notes.Store
}

func (a *activeStore) Close() error {
	return a.store.Close()
}

// openActiveStore loads the session and opens the store that belongs to it.
func openActiveStore(ctx context.Context, cfg *config.Config, cmd *cobra.Command, log zerolog.Logger) (*activeStore, error) {
	state, err := session.NewManager(cfg.SessionFile).Load()
	if err != nil {
		return nil, err
	}

	provider := session.NewProvider(func(ctx context.Context) (notes.Store, error) {
		return notes.OpenSQLite(ctx, cfg.DatabasePath)
	})
	store, err := provider.Notes(ctx, state)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, err
		}
		log.Error().Err(err).Str("database", cfg.DatabasePath).Msg("Failed to open notes store")
		return nil, fmt.Errorf("failed to open notes store: %w", err)
	}

	if state.GuestMode {
		fmt.Fprintln(cmd.ErrOrStderr(), "Guest mode: notes are not saved after this command finishes.")
	}
	log.Debug().
		Bool("guest", state.GuestMode).
		Str("user_id", state.EffectiveUserID()).
		Msg("Notes store opened")

	return &activeStore{state: state, userID: state.EffectiveUserID(), store: store}, nil
}

// ocrSettings builds OCR settings from the configuration.
func ocrSettings(cfg *config.Config, timeout time.Duration) ocr.Settings {
	return ocr.Settings{
		Provider:  cfg.OCRProvider,
		Languages: cfg.OCRLanguages,
		Timeout:   timeout,
		Yandex: ocr.YandexConfig{
			APIKey:    cfg.YandexAPIKey,
			FolderID:  cfg.YandexFolderID,
			URL:       cfg.YandexOCRURL,
			Model:     cfg.YandexOCRModel,
			Languages: cfg.OCRLanguages,
			Timeout:   timeout,
		},
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
			Timeout:     timeout,
		},
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeOutput writes data to outputPath, or to w when the path is empty.
func writeOutput(w io.Writer, data []byte, outputPath string, log zerolog.Logger) error {
	if outputPath == "" {
		if _, err := w.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Results written to file")
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("02.01.2006 15:04")
}
