package wbapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// FetchUserSettings retrieves the session query-parameter string from the
// settings endpoint. Any failure falls back to DefaultUserSettings; the
// crawl never aborts over session bootstrap.
func FetchUserSettings(ctx context.Context, c *Client) string {
	d, err := c.Lease(ctx)
	if err != nil {
		zap.L().Warn("wbapi: no proxy for user settings, using default", zap.Error(err))
		return DefaultUserSettings
	}

	resp, err := c.Do(ctx, d, http.MethodPost, UserSettingsURL(), DefaultHeaders())
	if err != nil {
		zap.L().Warn("wbapi: user settings fetch failed, using default", zap.Error(err))
		return DefaultUserSettings
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("wbapi: user settings endpoint rejected request, using default",
			zap.Int("status", resp.StatusCode),
		)
		return DefaultUserSettings
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		zap.L().Warn("wbapi: user settings read failed, using default", zap.Error(err))
		return DefaultUserSettings
	}

	var settings UserSettings
	if err := json.Unmarshal(body, &settings); err != nil || settings.XInfo == "" {
		zap.L().Warn("wbapi: user settings payload unusable, using default", zap.Error(err))
		return DefaultUserSettings
	}
	return settings.XInfo
}
