// Command xplhub runs a standalone xPL Hub: a UDP rendezvous point that
// tracks local client applications by port and rebroadcasts every
// inbound message to them (spec.md §4.6).
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/internal/xplcli"
	"github.com/xplgo/gxpl/pkg/xplapp"
	"github.com/xplgo/gxpl/pkg/xplhub"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplmonitor"
	"github.com/xplgo/gxpl/pkg/xplplatform"
	"github.com/xplgo/gxpl/pkg/xplstore"
)

func main() {
	iface := flag.String("i", "", "network interface to bind")
	debug := xplcli.DebugCount(flag.CommandLine, "d", "raise log level (repeatable)")
	nodaemon := flag.Bool("D", false, "do not daemonize")
	timeoutSec := flag.Int("W", 5, "interface discovery timeout, seconds")
	monitorAddr := flag.String("monitor", "", "address for the read-only HTTP introspection API (empty disables it)")
	dbPath := flag.String("db", "", "path to the diagnostics sighting database (default: ~/.config/gxpl/gxpl.db)")
	flag.Parse()
	_ = *nodaemon

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug > 0 {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	platform := xplplatform.NewSystem()
	registry := xplio.NewRegistry()
	app := xplapp.New(platform, registry)
	hub := xplhub.New(app, platform)

	store, err := xplstore.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("xplhub: failed to open diagnostics database")
	}
	defer store.Close()
	hub.SetStore(store)

	if err := hub.Open(xplio.Setting{Iface: *iface, IOTimeoutSec: *timeoutSec}); err != nil {
		log.Fatal().Err(err).Msg("xplhub: failed to open")
	}
	defer hub.Close()

	if *monitorAddr != "" {
		go serveMonitor(*monitorAddr, hub)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("xplhub: running")
	for {
		select {
		case <-sigChan:
			log.Info().Msg("xplhub: shutting down")
			return
		default:
		}
		if err := hub.Poll(1000); err != nil {
			log.Error().Err(err).Msg("xplhub: poll failed")
		}
	}
}

func serveMonitor(addr string, hub *xplhub.Hub) {
	router := xplmonitor.NewRouter(hubSource{hub: hub})
	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("xplhub: monitor server failed")
	}
}

type hubSource struct{ hub *xplhub.Hub }

func (s hubSource) Healthy() bool                                { return true }
func (s hubSource) TransportName() string                        { return "udp" }
func (s hubSource) Devices() []xplmonitor.DeviceInfo              { return nil }
func (s hubSource) BridgeClients() []xplmonitor.BridgeClientInfo { return nil }

func (s hubSource) HubClients() []xplmonitor.HubClientInfo {
	clients := s.hub.Clients()
	out := make([]xplmonitor.HubClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, xplmonitor.HubClientInfo{
			Port:        c.Port,
			IP:          c.IP.String(),
			Ident:       c.Ident,
			IntervalSec: c.IntervalSec,
			LastHeardMs: c.LastHeardMs,
		})
	}
	return out
}
