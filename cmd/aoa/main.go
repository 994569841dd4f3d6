// Command aoa runs the two-anchor angle-of-arrival locator: it ingests +UUDF
// reports from UDP, serial or a PCAP capture and serves position queries
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/api"
	"github.com/banshee-data/aoa.report/internal/config"
	"github.com/banshee-data/aoa.report/internal/db"
	"github.com/banshee-data/aoa.report/internal/monitoring"
	"github.com/banshee-data/aoa.report/internal/network"
	"github.com/banshee-data/aoa.report/internal/serialsrc"
	"github.com/banshee-data/aoa.report/internal/telemetry"
	"github.com/banshee-data/aoa.report/internal/timeutil"
	"github.com/banshee-data/aoa.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to JSON configuration file")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	udpAddress  = flag.String("udp", "", "UDP address for anchor reports (overrides config)")
	serialPort  = flag.String("serial", "", "Serial port to read +UUDF lines from (overrides config)")
	dbPath      = flag.String("db", "", "Telemetry database path (overrides config)")
	pcapFile    = flag.String("pcap", "", "Replay a PCAP capture instead of listening on UDP")
	pcapCapTime = flag.Bool("pcap-capture-time", false, "Stamp replayed reports with their capture time; fixes fail as stale when stale_after is set")
	pcapSpeed   = flag.Float64("pcap-speed", 1.0, "PCAP replay speed multiplier; 0 replays as fast as possible")
	debug       = flag.Bool("debug", false, "Log every datagram")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		path := fs.String("db", "aoa.db", "Telemetry database path")
		fs.Parse(os.Args[2:])
		if err := db.RunMigrateCommand(fs.Args(), *path, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	log.Print(version.String())
	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func applyFlagOverrides(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *udpAddress != "" {
		cfg.UDPAddress = udpAddress
	}
	if *serialPort != "" {
		cfg.SerialPort = serialPort
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	store := aoa.NewStore()
	locator := aoa.NewLocator(aoa.LocatorConfig{
		Store:      store,
		Layout:     aoa.AnchorLayout{Anchor1ID: cfg.GetAnchor1ID(), Anchor2ID: cfg.GetAnchor2ID()},
		Clock:      clock,
		StaleAfter: cfg.GetStaleAfter(),
	})
	logging := telemetry.NewLoggingState()

	var sinks telemetry.MultiSink
	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		var err error
		database, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open telemetry database: %w", err)
		}
		defer database.Close()
		sinks = append(sinks, database)
		log.Printf("telemetry database %s", path)
	}
	if broker := cfg.GetMQTTBroker(); broker != "" {
		client, err := telemetry.ConnectMQTT(broker, mqttClientID())
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		sinks = append(sinks, telemetry.NewMQTTSink(client, cfg.GetMQTTTopicPrefix()))
		log.Printf("publishing telemetry to %s", broker)
	}

	var recorder *telemetry.Recorder
	if len(sinks) > 0 {
		recorder = telemetry.NewRecorder(sinks, cfg.GetRecorderBuffer())
	}
	hub := api.NewHub(locator.Latest)

	stats := network.NewPacketStats()
	in := &ingest{store: store, logging: logging, recorder: recorder, hub: hub}
	dispatcher := network.NewDispatcher(in.handler(), stats)

	var forwarder *network.PacketForwarder
	if addr := cfg.GetForwardAddress(); addr != "" {
		var err error
		forwarder, err = network.NewPacketForwarder(addr, stats, cfg.GetStatsInterval())
		if err != nil {
			return err
		}
		defer forwarder.Close()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
		log.Print("live feed stopped")
	}()

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx)
			log.Print("telemetry recorder stopped")
		}()
	}

	if *pcapFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replayCfg := network.ReplayConfig{Speed: *pcapSpeed, Forwarder: forwarder}
			if !*pcapCapTime {
				replayCfg.Clock = clock
			}
			res, err := network.ReplayPCAPFile(ctx, *pcapFile, dispatcher, replayCfg)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("PCAP replay failed: %v", err)
			}
			log.Printf("PCAP replay done: %d frames, %d matched, %d accepted", res.Frames, res.Matched, res.Accepted)
		}()
		if forwarder != nil {
			forwarder.Start(ctx)
		}
	} else {
		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:     cfg.GetUDPAddress(),
			RcvBuf:      cfg.GetUDPRcvBuf(),
			LogInterval: cfg.GetStatsInterval(),
			Dispatcher:  dispatcher,
			Forwarder:   forwarder,
			Clock:       clock,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener stopped")
		}()
	}

	if path := cfg.GetSerialPort(); path != "" {
		src, err := serialsrc.New(serialsrc.Config{
			Path:         path,
			Options:      serialsrc.PortOptions{BaudRate: cfg.GetSerialBaud()},
			Dispatcher:   dispatcher,
			Clock:        clock,
			InitCommands: cfg.GetSerialInitCommands(),
		})
		if err != nil {
			log.Printf("serial source disabled: %v", err)
		} else {
			defer src.Close()
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("serial source error: %v", err)
				}
				log.Print("serial source stopped")
			}()
		}
	}

	server := api.NewServer(api.Config{
		Locator:           locator,
		Logging:           logging,
		Recorder:          recorder,
		DB:                database,
		Stats:             stats,
		Hub:               hub,
		Clock:             clock,
		DefaultSeparation: cfg.GetDefaultSeparation(),
		UDPAddress:        cfg.GetUDPAddress(),
		StaleAfter:        cfg.GetStaleAfter(),
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		httpServer := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("HTTP server listening on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	return nil
}

func mqttClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return "aoa-report-" + host
}
