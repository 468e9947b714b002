// Command startrek-demo runs a UDP echo Gate: every arrival is logged
// and echoed back to its sender, grounded on cmd/atlas/main.go's
// pflag+envparse+signal-driven-shutdown shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/r2northstar/startrek/pkg/conn"
	"github.com/r2northstar/startrek/pkg/dock"
	"github.com/r2northstar/startrek/pkg/docker"
	"github.com/r2northstar/startrek/pkg/gate"
	"github.com/r2northstar/startrek/pkg/hub"
	"github.com/r2northstar/startrek/pkg/plainship"
	"github.com/r2northstar/startrek/pkg/ship"
	"github.com/r2northstar/startrek/pkg/stconfig"
	"github.com/r2northstar/startrek/pkg/stnet"
	"github.com/r2northstar/startrek/pkg/strmetrics"

	"github.com/rs/zerolog"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var envFile string
	if pflag.NArg() == 1 {
		envFile = pflag.Arg(0)
	}

	cfg, err := stconfig.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	log := zerolog.Nop()
	if cfg.LogStdout {
		if cfg.LogStdoutPretty {
			log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger().Level(cfg.LogLevel)
		} else {
			log = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(cfg.LogLevel)
		}
	}

	if cfg.MetricsAddr != "" {
		dbg := http.NewServeMux()
		dbg.HandleFunc("/debug/pprof/", pprof.Index)
		dbg.HandleFunc("/debug/pprof/profile", pprof.Profile)
		dbg.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) { strmetrics.WritePrometheus(w) })
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, dbg); err != nil {
				log.Warn().Err(err).Msg("metrics server exited")
			}
		}()
	}

	addr := cfg.AddrUDP
	if !addr.IsValid() {
		addr, _ = netip.ParseAddrPort("0.0.0.0:0")
	}

	g := gate.New(gateConfig(cfg), nil, log)
	h := hub.New(hub.Config{Conn: connConfig(cfg), RecvBufSize: 65536}, udpFactory, g, log)

	listenChannel := stnet.NewUDP()
	if err := listenChannel.Bind(addr); err != nil {
		fmt.Fprintf(os.Stderr, "error: bind %s: %v\n", addr, err)
		os.Exit(1)
	}
	log.Info().Str("addr", listenChannel.Local().String()).Msg("listening")

	del := &echoDelegate{log: log, gate: g}
	parser := plainship.Parser{Window: cfg.ReassemblyMs}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.TickMs)
	defer ticker.Stop()

	known := map[netip.AddrPort]bool{}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			now := time.Now()
			h.Tick(now)
			g.Tick(now)

			buf := make([]byte, 65536)
			for {
				n, src, err := listenChannel.Receive(buf)
				if err != nil || n == 0 {
					break
				}
				if !known[src] {
					known[src] = true
					c, err := h.Connect(src, listenChannel.Local())
					if err != nil {
						log.Warn().Err(err).Msg("connect failed")
						continue
					}
					g.CreateDocker(src, listenChannel.Local(), c, parser, del)
				}
				if dk, ok := g.Docker(src, listenChannel.Local()); ok {
					dk.ProcessReceived(now, buf[:n])
				}
			}
		}
	}
}

type echoDelegate struct {
	docker.NopDelegate
	log  zerolog.Logger
	gate *gate.Gate
}

func (d *echoDelegate) OnArrival(dk *docker.Docker, a ship.Arrival) {
	d.log.Debug().Str("sn", string(a.SN())).Int("len", len(a.Payload())).Msg("arrival")
	dep := plainship.NewDeparture(a.Payload(), 1200, 3)
	dk.SendShip(time.Now(), dep)
}

func udpFactory(remote, local netip.AddrPort) (stnet.Channel, error) {
	ch := stnet.NewUDP()
	if local.IsValid() {
		if err := ch.Bind(local); err != nil {
			return nil, err
		}
	}
	if err := ch.Connect(remote); err != nil {
		return nil, err
	}
	return ch, nil
}

func connConfig(cfg *stconfig.Config) conn.Config {
	return conn.Config{Expires: cfg.ExpiresMs, RecvFresh: cfg.RecvFreshMs}
}

func gateConfig(cfg *stconfig.Config) gate.Config {
	return gate.Config{
		Dock: dock.Config{
			Expires:      cfg.ExpiresMs,
			ReassemblyMs: cfg.ReassemblyMs,
			MaxTries:     cfg.MaxTries,
		},
		Conn:            connConfig(cfg),
		HeartbeatMs:     cfg.HeartbeatMs,
		PurgeMs:         cfg.PurgeMs,
		AdvancePartyCap: cfg.AdvancePartyCap,
	}
}
