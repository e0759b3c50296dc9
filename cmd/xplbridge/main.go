// Command xplbridge joins a non-UDP transport (typically ZigBee) to the
// UDP hub side, forwarding messages between them with hop limiting
// (spec.md §4.7 C10).
package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/internal/xplcli"
	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplapp"
	"github.com/xplgo/gxpl/pkg/xplbridge"
	"github.com/xplgo/gxpl/pkg/xpldevice"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplmonitor"
	"github.com/xplgo/gxpl/pkg/xplplatform"
	"github.com/xplgo/gxpl/pkg/xplstore"
)

func main() {
	iface := flag.String("i", "", "network interface to bind")
	inTransport := flag.String("n", "xbeezb", "`in` side transport: udp or xbeezb")
	baud := flag.Int("B", 38400, "ZigBee serial baud rate")
	panid := flag.String("p", "", "ZigBee PAN ID, hex")
	maxHop := flag.Int("m", xplbridge.DefaultMaxHop, "maximum forwarding hop count, 1-9")
	insideBroadcast := flag.Bool("b", false, "echo every `in`-side message to every known client")
	enablePanidConfig := flag.Bool("panid-config", false, "expose a configurable panid item on the `out` side")
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

	inID, err := xpl.NewId("xplgo", "bridge", "in")
	if err != nil {
		log.Fatal().Err(err).Msg("xplbridge: bad in identity")
	}
	outID, err := xpl.NewId("xplgo", "bridge", "out")
	if err != nil {
		log.Fatal().Err(err).Msg("xplbridge: bad out identity")
	}

	platform := xplplatform.NewSystem()
	registry := xplio.NewRegistry()
	in := xplapp.New(platform, registry)
	out := xplapp.New(platform, registry)

	bridge := xplbridge.New(in, out, platform, *maxHop)
	bridge.SetInBroadcast(*insideBroadcast)

	store, err := xplstore.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("xplbridge: failed to open diagnostics database")
	}
	defer store.Close()
	bridge.SetStore(store)

	inIO := xplio.Setting{Iface: *iface, IOTimeoutSec: *timeoutSec}
	inIO.ZigBee.BaudRate = *baud
	if *panid != "" {
		panID, perr := strconv.ParseUint(*panid, 16, 64)
		if perr != nil {
			log.Fatal().Err(perr).Str("panid", *panid).Msg("xplbridge: bad -p panid")
		}
		inIO.ZigBee.PanID = panID
	}
	outIO := xplio.Setting{Iface: *iface, IOTimeoutSec: *timeoutSec}

	if err := bridge.Open(inID, outID, *inTransport, inIO, outIO); err != nil {
		log.Fatal().Err(err).Msg("xplbridge: failed to open")
	}
	defer bridge.Close()

	if *enablePanidConfig {
		panDev := xpldevice.New(out, platform, outID, true)
		bridge.EnablePanIDConfig(panDev, inIO)
		if err := panDev.Enable(true); err != nil {
			log.Fatal().Err(err).Msg("xplbridge: failed to enable panid device")
		}
		defer panDev.Delete()
	}

	if *monitorAddr != "" {
		go serveMonitor(*monitorAddr, bridge)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("xplbridge: running")
	for {
		select {
		case <-sigChan:
			log.Info().Msg("xplbridge: shutting down")
			return
		default:
		}
		if err := bridge.Poll(1000); err != nil {
			log.Error().Err(err).Msg("xplbridge: poll failed")
		}
	}
}

func serveMonitor(addr string, bridge *xplbridge.Bridge) {
	router := xplmonitor.NewRouter(bridgeSource{bridge: bridge})
	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("xplbridge: monitor server failed")
	}
}

type bridgeSource struct{ bridge *xplbridge.Bridge }

func (s bridgeSource) Healthy() bool                          { return true }
func (s bridgeSource) TransportName() string                  { return "udp" }
func (s bridgeSource) Devices() []xplmonitor.DeviceInfo        { return nil }
func (s bridgeSource) HubClients() []xplmonitor.HubClientInfo  { return nil }

func (s bridgeSource) BridgeClients() []xplmonitor.BridgeClientInfo {
	clients := s.bridge.Clients()
	out := make([]xplmonitor.BridgeClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, xplmonitor.BridgeClientInfo{
			Addr:               c.Addr.String(),
			Ident:              c.ID.String(),
			HeartbeatPeriodMax: c.HeartbeatPeriodMax,
			LastHeardMs:        c.LastHeardMs,
		})
	}
	return out
}
