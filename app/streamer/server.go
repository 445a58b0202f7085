package streamer

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/streamx-network/streamx/app/streamer/controller"
	"github.com/streamx-network/streamx/app/streamer/types"
	"github.com/streamx-network/streamx/pkg/utils"
)

// NewServer creates the status API server and attaches it to the app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
