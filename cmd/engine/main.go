package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/bank"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/embed"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/identity"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/logging"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to engine.yaml (optional)")
	dbPath := flag.String("db", envOr("MEMORY_DB", "adaptive_memory.db"), "path to the memory database")
	user := flag.String("user", "local", "user identifier, hashed into the session key")
	salt := flag.String("salt", envOr("MEMORY_SALT", "adaptive-memory"), "salt for session key derivation")
	hashAlg := flag.String("hash", "blake2b", "session key digest: sha256 | sha512 | blake2b")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("[ENGINE] load config: %v", err)
		}
	}

	keyer, err := identity.NewKeyer(identity.Algorithm(*hashAlg), *salt)
	if err != nil {
		log.Fatalf("[ENGINE] keyer: %v", err)
	}
	sessionID, err := keyer.SessionKey(*user)
	if err != nil {
		log.Fatalf("[ENGINE] session key: %v", err)
	}

	store, err := bank.NewSQLiteBank(*dbPath)
	if err != nil {
		log.Fatalf("[ENGINE] open bank: %v", err)
	}
	defer store.Close()

	eventLog, err := logging.NewEventLog(store.DB())
	if err != nil {
		log.Fatalf("[ENGINE] event log: %v", err)
	}

	eng, err := engine.New(cfg, store)
	if err != nil {
		log.Fatalf("[ENGINE] build engine: %v", err)
	}

	embedder := embed.NewBreakerEmbedder(
		embed.NewHashEmbedder(cfg.InputSize),
		embed.DefaultBreakerConfig(),
	)

	fmt.Println("Adaptive Memory Engine ready.")
	fmt.Printf("  DB: %s | session: %s | input: %d | hidden: %d\n",
		*dbPath, shortID(sessionID), cfg.InputSize, cfg.HiddenSize)
	fmt.Println("Type an event (!force <text>, !metrics, !reset, quit):")

	runLoop(eng, embedder, eventLog, sessionID)
}

// #endregion main

// #region repl

func runLoop(eng *engine.Engine, embedder embed.Embedder, eventLog *logging.EventLog, sessionID string) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}

		switch {
		case line == "!metrics":
			printMetrics(eng.Metrics())
			continue
		case line == "!reset":
			if err := eng.ResetSession(sessionID); err != nil {
				log.Printf("[ENGINE] reset: %v", err)
				continue
			}
			fmt.Println("session state zeroed")
			continue
		}

		force := false
		text := line
		if rest, ok := strings.CutPrefix(line, "!force "); ok {
			force = true
			text = rest
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		input, err := embedder.Embed(ctx, text)
		cancel()
		if err != nil {
			log.Printf("[ENGINE] embed: %v", err)
			continue
		}

		res, err := eng.ProcessEvent(sessionID, engine.Observation(input), force)
		if err != nil {
			log.Printf("[ENGINE] process event: %v", err)
			continue
		}

		entry := logging.EventEntry{
			SessionID:    sessionID,
			EventIndex:   eng.Metrics().TotalEvents,
			Significance: res.Significance,
			Threshold:    res.Threshold,
			Triggered:    res.Triggered,
			Loss:         res.Loss,
		}
		if err := eventLog.Log(entry); err != nil {
			log.Printf("[ENGINE] log event: %v", err)
		}

		lossStr := "-"
		if res.Loss != nil {
			lossStr = fmt.Sprintf("%.6f", *res.Loss)
		}
		fmt.Printf("significance=%.4f threshold=%.4f triggered=%v loss=%s\n",
			res.Significance, res.Threshold, res.Triggered, lossStr)
	}
}

func printMetrics(r engine.Report) {
	fmt.Printf("events=%d updates=%d update_rate=%.3f avg_loss=%.6f\n",
		r.TotalEvents, r.TriggeredUpdates, r.UpdateRate, r.AverageLoss)
	fmt.Printf("significance: mean=%.4f std=%.4f (n=%d)\n",
		r.EventStats.MeanSignificance, r.EventStats.StdSignificance, r.EventStats.Count)
	if n := len(r.ThresholdHistory); n > 0 {
		fmt.Printf("threshold: now=%.4f (history %d points)\n", r.ThresholdHistory[n-1], n)
	}
}

// #endregion repl

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion helpers
