// Mortality Telemetry Inspector
//
// Standalone CLI over the telemetry engine: validate and summarize archival
// bundles, re-encode repaired bundles, or tail a live feed and print the
// reconciled state as it changes.
//
// Usage:
//
//	go run ./cmd -bundle run.json                    # Validate + summarize
//	go run ./cmd -bundle run.json -repair fixed.json # Write normalized form
//	go run ./cmd -feed ws://localhost:8787/ws        # Tail a live feed
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mortality-lab/telemetry/engine/bundle"
	"github.com/mortality-lab/telemetry/engine/config"
	"github.com/mortality-lab/telemetry/engine/live"
	"github.com/mortality-lab/telemetry/engine/observability"
	"github.com/mortality-lab/telemetry/engine/snapshot"
	"github.com/mortality-lab/telemetry/event"
)

// stdLogger implements event.Logger using standard library log.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

func main() {
	// Parse command-line flags
	bundlePath := flag.String("bundle", "", "archival bundle to validate and summarize")
	repairOut := flag.String("repair", "", "write the normalized bundle to this path")
	feedURL := flag.String("feed", "", "live feed websocket URL to tail")
	configPath := flag.String("config", "", "engine config JSON overriding defaults")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	otlpEndpoint := flag.String("otlp", "", "OTLP gRPC endpoint for trace export")
	flag.Parse()

	logger := &stdLogger{}
	runID := uuid.New().String()[:8]
	logger.Info("telemetry_inspector_starting", "run_id", runID)

	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to read config: %v", err)
		}
		var overrides map[string]any
		if err := json.Unmarshal(raw, &overrides); err != nil {
			log.Fatalf("Failed to parse config: %v", err)
		}
		cfg := config.EngineConfigFromMap(overrides)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		config.SetEngineConfig(cfg)
		logger.Info("engine_config_loaded", "path", *configPath)
	}

	if *otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("telemetry-inspector", *otlpEndpoint, 1.0)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
		logger.Info("tracing_enabled", "endpoint", *otlpEndpoint)
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error("metrics_server_failed", "error", err.Error())
			}
		}()
		logger.Info("metrics_listening", "address", *metricsAddr)
	}

	switch {
	case *bundlePath != "":
		if err := inspectBundle(logger, *bundlePath, *repairOut); err != nil {
			log.Fatalf("Bundle inspection failed: %v", err)
		}
	case *feedURL != "":
		tailFeed(logger, *feedURL)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// inspectBundle validates, summarizes, and optionally re-encodes one bundle.
func inspectBundle(logger event.Logger, path, repairOut string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	n := bundle.NewNormalizer(nil, nil, logger)
	b, err := n.Decode(data)
	if err != nil {
		return err
	}
	printSummary(b)

	if repairOut != "" {
		out, err := b.EncodeIndent()
		if err != nil {
			return err
		}
		if err := os.WriteFile(repairOut, out, 0o644); err != nil {
			return err
		}
		logger.Info("bundle_rewritten", "path", repairOut, "bytes", len(out))
	}
	return nil
}

func printSummary(b *bundle.Bundle) {
	fmt.Printf("\nExperiment: %s\n", orDash(b.Experiment.Slug))
	if b.Experiment.Description != "" {
		fmt.Printf("  %s\n", b.Experiment.Description)
	}
	fmt.Printf("Timeline:   %s .. %s (%s)\n",
		event.FormatTimestampMS(b.Timeline.StartMS),
		event.FormatTimestampMS(b.Timeline.EndMS),
		time.Duration(b.Timeline.DurationMS)*time.Millisecond)

	fmt.Printf("Events:     %d", len(b.Events))
	if b.DegradedTimestamps > 0 {
		fmt.Printf(" (%d degraded timestamps)", b.DegradedTimestamps)
	}
	fmt.Println()
	byKind := make(map[string]int)
	for _, e := range b.Events {
		byKind[string(e.Kind)]++
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-24s %d\n", k, byKind[k])
	}

	final := snapshot.SnapshotsAt(b, b.Timeline.EndMS)
	agentIDs := b.AgentIDs()
	fmt.Printf("Agents:     %d\n", len(agentIDs))
	for _, id := range agentIDs {
		s := final[id]
		name := id
		if profile, ok := b.Agents[id]; ok && profile.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", profile.DisplayName, id)
		}
		fmt.Printf("  %-32s status=%-10s lives=%d diary=%d",
			name, s.Status, s.LifeIndex+1, len(b.Diaries[id]))
		if route := b.Routes[id]; route != nil && route.Last != "" {
			fmt.Printf(" model=%s", route.Last)
		}
		fmt.Println()
	}

	fmt.Printf("Connectors: %d death-to-diary links\n", len(b.Connectors))

	if notes := b.DeathNotes(); len(notes) > 0 {
		fmt.Printf("Deaths:     %d recorded by exporter\n", len(notes))
		for _, note := range notes {
			fmt.Printf("  %s\n", note)
		}
	}
	if durations := b.RunDurations(); len(durations) > 0 {
		var total float64
		for _, d := range durations {
			total += d
		}
		fmt.Printf("Lifetimes:  %d runs, %s total\n",
			len(durations), time.Duration(total*float64(time.Second)).Round(time.Second))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// tailFeed mirrors a live session until interrupted, printing each
// reconciled update.
func tailFeed(logger event.Logger, url string) {
	r := live.NewReconciler(nil, nil, nil, logger)
	defer r.Close()

	unsub := r.Subscribe(func(u live.Update) {
		line := fmt.Sprintf("[%s] agents=%d recent=%d messages=%d diaries=%d deaths=%d",
			u.Status, len(u.State.Agents), u.State.Ring.Len(),
			u.State.Metrics.TotalMessages, u.State.Metrics.TotalDiaryEntries,
			u.State.Metrics.TotalDeaths)
		if u.LastError != "" {
			line += " error=" + u.LastError
		}
		fmt.Println(line)
	})
	defer unsub()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	r.Connect(url)
	fmt.Printf("\nTailing live feed at %s\n", url)
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())
	r.Disconnect()
}
