package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchCatalog loads the catalog into holder and keeps it fresh by polling the file's mtime.
// A broken edit is logged and the previous catalog stays in place.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, holder *CatalogHolder, logger *zerolog.Logger) error {
	if path == "" {
		path = defaultCatalogPath
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	holder.Set(cat)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			info, err := os.Stat(path)
			if err != nil || !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()

			next, err := LoadCatalog(path)
			if err != nil {
				logger.Error().Err(err).Str("path", path).Msg("catalog reload failed")
				continue
			}
			holder.Set(next)
			logger.Info().Str("catalog", next.String()).Msg("catalog reloaded")
		}
	}()

	return nil
}
