package wbapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-lens/wb-crawler/internal/proxy"
)

// testClient returns a Client whose registry considers its single proxy
// reachable (empty probe battery passes vacuously) and whose transport is
// hijacked by httpmock.
func testClient(t *testing.T) *Client {
	t.Helper()
	d, err := proxy.Parse("http://127.0.0.1:1")
	require.NoError(t, err)
	reg := proxy.NewRegistry([]proxy.Descriptor{d}, proxy.RegistryOptions{})
	require.NoError(t, reg.Refresh(context.Background()))

	c := NewClient(reg, ClientOptions{RequestsPerSecond: 10_000, Burst: 10_000})
	httpmock.ActivateNonDefault(c.http)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestGetJSONDecodes(t *testing.T) {
	c := testClient(t)
	httpmock.RegisterResponder("GET", "https://card.wb.ru/test",
		httpmock.NewStringResponder(200, `{"data":{"total":42}}`))

	var out CatalogResponse
	require.NoError(t, c.GetJSON(context.Background(), "https://card.wb.ru/test", nil, &out))
	assert.Equal(t, 42, out.Data.Total)
}

func TestGetJSONStatusError(t *testing.T) {
	c := testClient(t)
	httpmock.RegisterResponder("GET", "https://card.wb.ru/gone",
		httpmock.NewStringResponder(404, "nope"))

	var out CatalogResponse
	err := c.GetJSON(context.Background(), "https://card.wb.ru/gone", nil, &out)
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.StatusCode)
}

func TestFetchCatalogJSONFallbackFirstSuccessWins(t *testing.T) {
	c := testClient(t)

	var attempts []string
	httpmock.RegisterResponder("GET", `=~^https://catalog\.wb\.ru/catalog/toys/v4/filters`,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			attempts = append(attempts, q.Encode())
			// Only the combination with spp=30 and curr=rub succeeds.
			if q.Get("spp") == "30" && q.Get("curr") == "rub" && q.Get("appType") == "1" {
				return httpmock.NewStringResponse(200, `{"data":{"total":7}}`), nil
			}
			return httpmock.NewStringResponse(496, ""), nil
		})

	src := Source{Shard: "toys", Query: "cat=1"}
	out, err := FetchCatalogJSON(context.Background(), c, FilterURL(src, 0, 1000))
	require.NoError(t, err)
	assert.Equal(t, 7, out.Data.Total)

	// The winning combination is the 16th in the ordered cross product:
	// all ten spp=0 sets fail, then the five {spp=30, no curr} sets, then
	// {spp=30, curr=rub, appType=1} succeeds and stops the walk.
	assert.Len(t, attempts, 16)
}

func TestFetchCatalogJSONExhaustion(t *testing.T) {
	c := testClient(t)
	httpmock.RegisterResponder("GET", `=~^https://catalog\.wb\.ru/`,
		httpmock.NewStringResponder(496, ""))

	src := Source{Shard: "toys", Query: "cat=1"}
	_, err := FetchCatalogJSON(context.Background(), c, FilterURL(src, 0, 1000))
	require.Error(t, err)
	assert.Equal(t, 30, httpmock.GetTotalCallCount())
}

func TestFetchCatalogJSONCancelled(t *testing.T) {
	c := testClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchCatalogJSON(ctx, c, "https://catalog.wb.ru/catalog/x/v4/filters")
	require.Error(t, err)
}

func TestFetchUserSettings(t *testing.T) {
	c := testClient(t)
	httpmock.RegisterResponder("POST", UserSettingsURL(),
		httpmock.NewStringResponder(200, `{"xinfo":"appType=1&curr=rub&dest=-123"}`))

	got := FetchUserSettings(context.Background(), c)
	assert.Equal(t, "appType=1&curr=rub&dest=-123", got)
}

func TestFetchUserSettingsFallsBack(t *testing.T) {
	c := testClient(t)
	httpmock.RegisterResponder("POST", UserSettingsURL(),
		httpmock.NewStringResponder(503, ""))

	got := FetchUserSettings(context.Background(), c)
	assert.Equal(t, DefaultUserSettings, got)

	u, err := url.ParseQuery(got)
	require.NoError(t, err)
	assert.Equal(t, "rub", u.Get("curr"))
}
