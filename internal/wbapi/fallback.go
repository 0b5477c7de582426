package wbapi

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// paramSet is one combination of the three session query parameters the
// server intermittently requires. An empty value means "leave the parameter
// off entirely".
type paramSet struct {
	spp     string
	curr    string
	appType string
}

func (p paramSet) apply(rawURL string) string {
	return withParams(rawURL, map[string]string{
		"spp":     p.spp,
		"curr":    p.curr,
		"appType": p.appType,
	})
}

// catalogParamFallback is the ordered list of parameter sets tried against
// the catalog endpoints. First success wins; the order matches the cross
// product the server has historically accepted most often first.
var catalogParamFallback = buildParamFallback()

func buildParamFallback() []paramSet {
	var sets []paramSet
	for _, spp := range []string{"0", "30", ""} {
		for _, curr := range []string{"", "rub"} {
			for _, appType := range []string{"1", "", "30", "2", "3"} {
				sets = append(sets, paramSet{spp: spp, curr: curr, appType: appType})
			}
		}
	}
	return sets
}

// FetchCatalogJSON fetches a catalog endpoint (item count or listing page),
// walking the parameter-set fallback in order until one combination returns
// HTTP 200. Each attempt uses a fresh random proxy. Exhausting the list is a
// fetch failure. Attempts are strictly sequential: speculative parallel
// requests would trip the server-side rate limits.
func FetchCatalogJSON(ctx context.Context, c *Client, rawURL string) (*CatalogResponse, error) {
	var lastErr error
	for _, ps := range catalogParamFallback {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "wbapi: catalog fetch cancelled")
		}

		attemptURL := ps.apply(rawURL)
		var out CatalogResponse
		err := c.GetJSON(ctx, attemptURL, nil, &out)
		if err == nil {
			return &out, nil
		}
		lastErr = err
		zap.L().Debug("wbapi: catalog fetch attempt failed, trying next parameter set",
			zap.String("url", attemptURL),
			zap.Error(err),
		)
	}
	return nil, eris.Wrapf(lastErr, "wbapi: all parameter sets failed for %s", rawURL)
}
