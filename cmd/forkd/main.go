// Copyright (c) 2017-2020 The qitmeer developers

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/btcsuite/btclog"

	"github.com/noxproject/forkd/config"
	"github.com/noxproject/forkd/core/blockpool"
	"github.com/noxproject/forkd/core/confirmedchain"
	"github.com/noxproject/forkd/core/organizer"
	"github.com/noxproject/forkd/core/validator"
	"github.com/noxproject/forkd/log"
	"github.com/noxproject/forkd/metrics"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := forkdMain(); err != nil {
		log.Logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func forkdMain() error {
	cfg, _, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if err := log.InitLogRotator(cfg.LogFile()); err != nil {
		return err
	}
	defer log.Close()
	if lvl, ok := btclog.LevelFromString(cfg.DebugLevel); ok {
		log.SetLevel(lvl)
	}

	log.Logger.Infof("forkd starting, home dir %s, data dir %s", cfg.HomeDir, cfg.DataDir)
	if cfg.MetricsEnabled {
		metrics.Enabled = true
	}

	interrupt := interruptListener()
	defer log.Logger.Info("shutdown complete")

	chain, err := confirmedchain.Open(filepath.Join(cfg.DataDir, "chain.db"))
	if err != nil {
		return fmt.Errorf("open confirmed chain: %w", err)
	}
	defer chain.Close()

	var mirror blockpool.Mirror
	badger, err := blockpool.OpenBadgerMirror(filepath.Join(cfg.DataDir, "orphans"))
	if err != nil {
		log.Logger.Warnf("orphan mirror unavailable, continuing without restart persistence: %v", err)
	} else {
		mirror = badger
		defer badger.Close()
	}
	pool := blockpool.New(cfg.OrphanExpiration, mirror)
	if n := pool.Len(); n > 0 {
		log.Logger.Infof("restored %d orphan(s) from the block pool mirror", n)
	}

	val := validator.NewTestDouble(cfg.ValidatorWorkers)
	defer val.Stop()

	org := organizer.New(chain, pool, val, organizer.Config{
		FlushPerReorg:        cfg.FlushPerReorg,
		StrictForkPointCheck: cfg.StrictForkPointCheck,
		ValidatorWorkers:     cfg.ValidatorWorkers,
		NetworkWorkers:       2,
	})
	org.SubscribeReorganize(func(ev organizer.ReorgEvent) {
		log.Logger.Infof("notification: %s parentHeight=%d incoming=%d outgoing=%d",
			ev.Type, ev.ParentHeight, len(ev.Incoming), len(ev.Outgoing))
	})
	if err := org.Start(); err != nil {
		return fmt.Errorf("start organizer: %w", err)
	}

	go func() {
		select {
		case err := <-org.Fatal():
			log.Logger.Errorf("fatal condition surfaced by organizer, halting: %v", err)
			os.Exit(1)
		case <-interrupt:
		}
	}()

	<-interrupt
	log.Logger.Info("shutdown signal received")
	return org.Stop()
}

// interruptListener returns a channel that is closed once on the first
// SIGINT/SIGTERM.
func interruptListener() <-chan struct{} {
	ch := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(ch)
	}()
	return ch
}
