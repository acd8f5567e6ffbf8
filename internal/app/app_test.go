package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errormonitor/internal/apimetrics"
	"errormonitor/internal/config"
	"errormonitor/internal/store"
	"errormonitor/internal/types"
)

// fixedPortConfig overrides MockConfig's server port/host so each test binds
// its own loopback address instead of colliding on the shared default.
type fixedPortConfig struct {
	*config.MockConfig
	port int
}

func (c *fixedPortConfig) GetEffectiveServerConfig() types.ServerConfig {
	cfg := c.MockConfig.GetEffectiveServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = c.port
	return cfg
}

func TestApp_StartServesHTTPOnConfiguredPort(t *testing.T) {
	cm := &fixedPortConfig{MockConfig: &config.MockConfig{}, port: 41901}
	s := store.NewMemoryStore()
	a := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), cm, s, apimetrics.New(), nil)

	require.NoError(t, a.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + a.server.Addr + "/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

func TestApp_StopClosesStoreAndShutsDownServer(t *testing.T) {
	cm := &fixedPortConfig{MockConfig: &config.MockConfig{}, port: 41902}
	s := store.NewMemoryStore()
	a := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), cm, s, apimetrics.New(), nil)

	require.NoError(t, a.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Stop(ctx)
	assert.NoError(t, err)

	_, err = s.Get("anything")
	assert.Error(t, err)
}

func TestApp_StopWithoutDeadlineStillShutsDown(t *testing.T) {
	cm := &fixedPortConfig{MockConfig: &config.MockConfig{}, port: 41903}
	s := store.NewMemoryStore()
	a := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), cm, s, apimetrics.New(), nil)

	require.NoError(t, a.Start())
	assert.NoError(t, a.Stop(context.Background()))
}
