package report

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/retail-lens/wb-crawler/internal/config"
	"github.com/retail-lens/wb-crawler/internal/resilience"
)

// Archive packs the report into a sibling zip archive, removes the original
// file and returns the archive path.
func (w *Writer) Archive() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	zipPath := strings.TrimSuffix(w.path, filepath.Ext(w.path)) + ".zip"

	out, err := os.Create(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "report: create archive")
	}
	defer out.Close() //nolint:errcheck

	zw := zip.NewWriter(out)
	entry, err := zw.Create(filepath.Base(w.path))
	if err != nil {
		return "", eris.Wrap(err, "report: create archive entry")
	}

	in, err := os.Open(w.path)
	if err != nil {
		return "", eris.Wrap(err, "report: open report for archive")
	}
	if _, err := io.Copy(entry, in); err != nil {
		in.Close() //nolint:errcheck,gosec
		return "", eris.Wrap(err, "report: archive report")
	}
	in.Close() //nolint:errcheck,gosec

	if err := zw.Close(); err != nil {
		return "", eris.Wrap(err, "report: close archive")
	}
	if err := os.Remove(w.path); err != nil {
		return "", eris.Wrap(err, "report: remove archived report")
	}

	zap.L().Info("report: archived", zap.String("path", zipPath))
	return zipPath, nil
}

// Upload ships the archive to the configured FTP drop. Transient transport
// failures are retried with backoff; an empty FTP address disables the
// transfer.
func Upload(ctx context.Context, cfg config.ReportConfig, path string) error {
	if cfg.FTPAddr == "" {
		zap.L().Info("report: ftp transfer disabled")
		return nil
	}

	return resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("report: retrying upload",
				zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func(ctx context.Context) error {
		return uploadOnce(ctx, cfg, path)
	})
}

func uploadOnce(ctx context.Context, cfg config.ReportConfig, path string) error {
	conn, err := ftp.Dial(cfg.FTPAddr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return eris.Wrapf(err, "report: dial ftp %s", cfg.FTPAddr)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(cfg.FTPUser, cfg.FTPPassword); err != nil {
		return eris.Wrap(err, "report: ftp login")
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "report: open archive for upload")
	}
	defer f.Close() //nolint:errcheck

	remote := filepath.Base(path)
	if cfg.FTPDir != "" {
		remote = strings.TrimSuffix(cfg.FTPDir, "/") + "/" + remote
	}
	if err := conn.Stor(remote, f); err != nil {
		return eris.Wrapf(err, "report: store %s", remote)
	}

	zap.L().Info("report: uploaded", zap.String("remote", remote))
	return nil
}
