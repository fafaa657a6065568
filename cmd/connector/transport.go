package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/zhuxian89/dingtalk-moltbot-connector/bridge"
	"github.com/zhuxian89/dingtalk-moltbot-connector/config"
	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
)

// callbackListener receives inbound events over DingTalk's HTTP callback mode
// and delivers them through the bridge.Handler contract. The handler's return
// value maps onto the HTTP acknowledgement: nil responds 200, an error 500 so
// the platform redelivers.
type callbackListener struct {
	addr string
}

func newTransportListener(cfg *config.Config) (bridge.Listener, error) {
	return &callbackListener{addr: cfg.Transport.ListenAddr}, nil
}

// Listen serves the callback endpoint until ctx is cancelled.
func (l *callbackListener) Listen(ctx context.Context, h bridge.Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ev, err := bridge.ParseEvent(body)
		if err != nil {
			logger.Warn("dropping undecodable inbound event", "error", err)
			// Malformed payloads are acknowledged; redelivery cannot fix them.
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := h.HandleMessage(r.Context(), ev); err != nil {
			logger.Error("message handling failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              l.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
