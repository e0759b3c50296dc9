// Command xplmcp serves read-only MCP tools over the diagnostics
// sighting database a running Hub or Bridge has been recording into
// (pkg/xplstore), mirroring the teacher's cmd/mcp entry point.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/pkg/xplmcp"
	"github.com/xplgo/gxpl/pkg/xplmonitor"
	"github.com/xplgo/gxpl/pkg/xplstore"
)

func main() {
	// Logging must go to stderr — stdout is the MCP transport.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dbPath := flag.String("db", "", "path to the diagnostics sighting database (default: ~/.config/gxpl/gxpl.db)")
	flag.Parse()

	store, err := xplstore.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("xplmcp: failed to open diagnostics database")
	}
	defer store.Close()

	mcpServer := xplmcp.NewServer(storeSource{store: store})

	log.Info().Msg("xplmcp: starting MCP server on stdio")
	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("xplmcp: MCP server failed")
	}
}

// storeSource adapts the diagnostics database to xplmonitor.Source so
// the MCP tools can answer "what have we seen" without a live
// Hub/Bridge/Device in this process.
type storeSource struct{ store *xplstore.Store }

func (s storeSource) Healthy() bool         { return true }
func (s storeSource) TransportName() string { return "udp" }

func (s storeSource) Devices() []xplmonitor.DeviceInfo { return nil }

func (s storeSource) HubClients() []xplmonitor.HubClientInfo {
	clients, err := s.store.ListHubClients(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("xplmcp: list hub clients failed")
		return nil
	}
	out := make([]xplmonitor.HubClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, xplmonitor.HubClientInfo{
			Port:        c.Port,
			IP:          c.IP,
			Ident:       c.Ident,
			IntervalSec: c.IntervalSec,
			LastHeardMs: c.LastSeenMs,
		})
	}
	return out
}

func (s storeSource) BridgeClients() []xplmonitor.BridgeClientInfo {
	clients, err := s.store.ListBridgeClients(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("xplmcp: list bridge clients failed")
		return nil
	}
	out := make([]xplmonitor.BridgeClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, xplmonitor.BridgeClientInfo{
			Addr:               c.Addr,
			Ident:              c.Ident,
			HeartbeatPeriodMax: int64(c.HeartbeatPeriodSec),
			LastHeardMs:        c.LastSeenMs,
		})
	}
	return out
}
