package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/health"
	"github.com/streamx-network/streamx/pkg/provider"
)

// HandleHealth reports liveness.
func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode("1")
}

// HandleReady reports readiness: the service is ready once the stream has
// emitted at least one block.
func (c *Controller) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if c.App.Streamer.Status().Started {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

// HandleStream returns the stream progress snapshot.
func (c *Controller) HandleStream(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(c.App.Streamer.Status())
}

type providersResponse struct {
	Active    string            `json:"active"`
	Default   string            `json:"default"`
	Providers []health.Snapshot `json:"providers"`
}

// HandleProviders lists every provider with its current health snapshot.
func (c *Controller) HandleProviders(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(providersResponse{
		Active:    c.App.Set.Active().Name,
		Default:   c.App.Set.Default(),
		Providers: c.App.Set.Snapshots(),
	})
}

// HandleProviderDetail returns one provider's health snapshot.
func (c *Controller) HandleProviderDetail(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := c.App.Set.Get(name); !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown provider"})
		return
	}
	_ = json.NewEncoder(w).Encode(c.App.Set.Recorder(name).Snapshot())
}

// HandleSwitch forces a provider switch, bypassing the policy. The streaming
// loop notices the change on its next cycle and resynchronizes.
func (c *Controller) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Provider == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "provider is required"})
		return
	}

	if _, ok := c.App.Set.Get(in.Provider); !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown provider"})
		return
	}

	// Manual switches obey the same cool-down as the policy, so an
	// operator cannot flap providers or lock the policy out by
	// re-stamping the switch timestamp.
	if in.Provider != c.App.Set.Active().Name {
		if since := c.App.Set.SinceLastSwitch(); since < c.App.Config.MinSwitchInterval {
			retryIn := c.App.Config.MinSwitchInterval - since
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "switch cool-down in effect",
				"retryIn": retryIn.String(),
			})
			return
		}
	}

	if err := c.App.Set.SwitchTo(in.Provider); err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	c.App.Logger.Info("Manual provider switch",
		zap.String("provider", in.Provider),
		zap.String("by", "api"))
	_ = json.NewEncoder(w).Encode(map[string]string{"active": in.Provider})
}
