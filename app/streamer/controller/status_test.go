package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/streamx-network/streamx/app/streamer/types"
	"github.com/streamx-network/streamx/pkg/config"
	"github.com/streamx-network/streamx/pkg/provider"
	"github.com/streamx-network/streamx/pkg/streamer"
)

// testApp builds an app on a manually advanced clock so tests control how
// much time has passed since the last switch.
func testApp(t *testing.T) (*types.App, func(time.Duration)) {
	t.Helper()
	cfg := config.Default()
	cfg.Providers = map[string]config.ProviderConfig{
		config.ProviderAlchemy:    {URL: "https://alchemy.example/rpc"},
		config.ProviderChainstack: {URL: "https://chainstack.example/rpc"},
	}

	base := time.Unix(1_700_000_000, 0)
	offset := time.Duration(0)
	set, err := provider.New(cfg, func() time.Time { return base.Add(offset) })
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	app := &types.App{
		Config:   cfg,
		Set:      set,
		Logger:   logger,
		Streamer: streamer.New(cfg, logger, set, nil, streamer.EVMValidator{}, nil, streamer.SystemClock{}),
	}
	return app, func(d time.Duration) { offset += d }
}

func TestHandleProvidersListsAllWithActive(t *testing.T) {
	app, _ := testApp(t)
	c := &Controller{App: app}

	rec := httptest.NewRecorder()
	c.HandleProviders(rec, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out providersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, config.ProviderAlchemy, out.Active)
	assert.Equal(t, config.ProviderAlchemy, out.Default)
	assert.Len(t, out.Providers, 2)
}

func TestHandleSwitchChangesActiveProvider(t *testing.T) {
	app, advance := testApp(t)
	c := &Controller{App: app}
	advance(app.Config.MinSwitchInterval + time.Second)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/providers/switch",
		strings.NewReader(`{"provider":"chainstack"}`))
	c.HandleSwitch(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.ProviderChainstack, app.Set.Active().Name)
}

func TestHandleSwitchRejectedDuringCooldown(t *testing.T) {
	app, advance := testApp(t)
	c := &Controller{App: app}

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/providers/switch",
			strings.NewReader(`{"provider":"chainstack"}`))
		c.HandleSwitch(rec, req)
		return rec
	}

	// Straight after construction the cool-down is still running.
	rec := post()
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, config.ProviderAlchemy, app.Set.Active().Name)

	// Once it elapses the same request goes through, and repeating it is
	// an idempotent no-op rather than a fresh cool-down violation.
	advance(app.Config.MinSwitchInterval + time.Second)
	require.Equal(t, http.StatusOK, post().Code)
	assert.Equal(t, http.StatusOK, post().Code)
	assert.Equal(t, config.ProviderChainstack, app.Set.Active().Name)
}

func TestHandleSwitchUnknownProvider(t *testing.T) {
	app, _ := testApp(t)
	c := &Controller{App: app}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/providers/switch",
		strings.NewReader(`{"provider":"nope"}`))
	c.HandleSwitch(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReadyBeforeFirstBlock(t *testing.T) {
	app, _ := testApp(t)
	c := &Controller{App: app}

	rec := httptest.NewRecorder()
	c.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
