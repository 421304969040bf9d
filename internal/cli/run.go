package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/service"
	"github.com/stueble/guestsync/internal/infrastructure/ws"
	"github.com/stueble/guestsync/internal/protocol"
	"github.com/stueble/guestsync/pkg/logger"
)

// RunCmd returns the long-running sync command.
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the server and keep the local guest list in sync",
		Long: `Connects the push channel, replays any buffered offline writes, and
applies server events to the local store until interrupted. While the
connection is down a colored indicator shows the reconnect countdown.`,
		RunE: runRun,
	}
	cmd.Flags().Bool("json-frames", false, "Use JSON text frames on the push channel instead of msgpack")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireSession(); err != nil {
		return err
	}

	reconciler := service.NewReconciler(a.store, a.settings, logger.For("reconciler"))
	replayer := service.NewBufferReplayer(a.buffer, a.api, logger.For("replayer"))
	syncSvc := service.NewSyncService(a.api, a.buffer, a.store, a.settings, logger.For("sync"))

	if a.cfg.MetricsAddr != "" {
		go serveMetrics(a.cfg.MetricsAddr)
	}

	encoding := protocol.Binary
	if jsonFrames, _ := cmd.Flags().GetBool("json-frames"); jsonFrames {
		encoding = protocol.Text
	}

	push := ws.NewClient(ws.Options{
		URL:               pushURL(a.cfg.ServerURL),
		Encoding:          encoding,
		Token:             a.api.Session,
		HeartbeatInterval: a.cfg.HeartbeatInterval,
		OnStateChange:     printConnectionState,
	}, reconciler, replayer, a.settings, logger.For("ws"))

	// Initial resync runs alongside the push channel: the channel keeps
	// the list current, the resync catches anything missed while away.
	go initialSync(ctx, syncSvc, a)

	err = push.Run(ctx)
	if errors.Is(err, domain.ErrUnauthorized) {
		return fmt.Errorf("session rejected by the server, run `guestsync login` again")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func initialSync(ctx context.Context, svc *service.SyncService, a *app) {
	if svc.GuestListStale(ctx) {
		if _, err := svc.RefreshGuestList(ctx); err != nil {
			a.log.Warn().Err(err).Msg("initial guest list refresh failed")
		}
	}
	if _, err := svc.RefreshHosts(ctx); err != nil {
		a.log.Debug().Err(err).Msg("host refresh failed")
	}
	if _, err := svc.RefreshTutors(ctx); err != nil {
		a.log.Debug().Err(err).Msg("tutor refresh failed")
	}
	if _, err := svc.RefreshConfig(ctx); err != nil {
		a.log.Debug().Err(err).Msg("config refresh failed")
	}
}

func serveMetrics(addr string) {
	log := logger.For("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
	}
}

// pushURL derives the WebSocket endpoint from the API base URL.
func pushURL(serverURL string) string {
	u := serverURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + "/api/websocket"
}

var (
	stateOnline  = color.New(color.FgGreen, color.Bold)
	stateOffline = color.New(color.FgRed, color.Bold)
	stateNeutral = color.New(color.FgYellow)
)

func printConnectionState(s ws.State, retryIn time.Duration) {
	switch s {
	case ws.StateAuthenticated:
		stateOnline.Println("● connected")
	case ws.StateUnauthorized:
		stateOffline.Println("● unauthorized")
	case ws.StateDisconnected:
		if retryIn > 0 {
			stateOffline.Printf("● offline, retrying in %s\n", retryIn)
		} else {
			stateOffline.Println("● offline, retrying")
		}
	case ws.StateConnecting:
		stateNeutral.Println("● connecting…")
	}
}
