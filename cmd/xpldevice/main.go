// Command xpldevice runs a single configurable xPL Device, heartbeating
// and answering the config protocol over either transport (spec.md
// §4.4 C7, §4.5 C8).
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
	"github.com/xplgo/gxpl/pkg/xpldevice"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplmonitor"
	"github.com/xplgo/gxpl/pkg/xplplatform"
)

func main() {
	vendor := flag.String("vendor", "xplgo", "device vendor id")
	device := flag.String("device", "demo", "device id")
	instance := flag.String("instance", "", "device instance (generated if empty)")
	iface := flag.String("i", "", "network interface to bind")
	netTransport := flag.String("n", "udp", "transport: udp or xbeezb")
	baud := flag.Int("B", 38400, "ZigBee serial baud rate")
	panid := flag.String("p", "", "ZigBee PAN ID, hex")
	configFile := flag.String("f", "", "directory for persisted device configuration")
	configurable := flag.Bool("c", false, "expose the config protocol")
	debug := xplcli.DebugCount(flag.CommandLine, "d", "raise log level (repeatable)")
	nodaemon := flag.Bool("D", false, "do not daemonize")
	timeoutSec := flag.Int("W", 5, "interface discovery timeout, seconds")
	monitorAddr := flag.String("monitor", "", "address for the read-only HTTP introspection API (empty disables it)")
	flag.Parse()
	_ = *nodaemon

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug > 0 {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	id, err := xpl.NewId(*vendor, *device, *instance)
	if err != nil {
		log.Fatal().Err(err).Msg("xpldevice: bad device identity")
	}

	platform := xplplatform.NewSystem()
	registry := xplio.NewRegistry()
	app := xplapp.New(platform, registry)

	ioSetting := xplio.Setting{
		Iface:        *iface,
		ConnectType:  xplio.ConnectAuto,
		IOTimeoutSec: *timeoutSec,
	}
	if *panid != "" {
		panID, perr := strconv.ParseUint(*panid, 16, 64)
		if perr != nil {
			log.Fatal().Err(perr).Str("panid", *panid).Msg("xpldevice: bad -p panid")
		}
		ioSetting.ZigBee.PanID = panID
	}
	ioSetting.ZigBee.BaudRate = *baud

	if err := app.Open(id, xplapp.Setting{Transport: *netTransport, IO: ioSetting}); err != nil {
		log.Fatal().Err(err).Msg("xpldevice: failed to open transport")
	}
	defer app.Close()

	dev := xpldevice.New(app, platform, id, *configurable)
	if *configFile != "" {
		dev.SetStore(xpldevice.NewFileStore(*configFile))
	}
	if err := dev.Enable(true); err != nil {
		log.Fatal().Err(err).Msg("xpldevice: failed to enable device")
	}
	defer dev.Delete()

	if *monitorAddr != "" {
		go serveMonitor(*monitorAddr, app, dev)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Str("device", id.String()).Msg("xpldevice: running")
	for {
		select {
		case <-sigChan:
			log.Info().Msg("xpldevice: shutting down")
			return
		default:
		}
		if err := app.Poll(1000); err != nil {
			log.Error().Err(err).Msg("xpldevice: poll failed")
		}
		dev.Tick(platform.NowMs())
	}
}

func serveMonitor(addr string, app *xplapp.Application, dev *xpldevice.Device) {
	router := xplmonitor.NewRouter(deviceSource{app: app, dev: dev})
	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("xpldevice: monitor server failed")
	}
}

type deviceSource struct {
	app *xplapp.Application
	dev *xpldevice.Device
}

func (s deviceSource) Healthy() bool       { return true }
func (s deviceSource) TransportName() string {
	if s.app.IsUDP() {
		return "udp"
	}
	return "xbeezb"
}
func (s deviceSource) HubClients() []xplmonitor.HubClientInfo       { return nil }
func (s deviceSource) BridgeClients() []xplmonitor.BridgeClientInfo { return nil }

func (s deviceSource) Devices() []xplmonitor.DeviceInfo {
	return []xplmonitor.DeviceInfo{{
		ID:           s.dev.ID.String(),
		Enabled:      s.dev.Enabled(),
		HubConfirmed: s.dev.HubConfirmed(),
		Configurable: s.dev.Configurable(),
		Configured:   s.dev.Configured(),
	}}
}
