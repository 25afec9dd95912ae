package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ohowland/powernet/internal/lib/scene/virtualscene"
	"github.com/ohowland/powernet/internal/pkg/config"
	"github.com/ohowland/powernet/internal/pkg/database/mongodb"
	"github.com/ohowland/powernet/internal/pkg/database/sqldb"
	"github.com/ohowland/powernet/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/powernet/internal/pkg/network"
	"github.com/ohowland/powernet/internal/pkg/web"
	"github.com/ohowland/powernet/internal/pkg/webservice"
)

// NewRunCommand runs a scene until interrupted, streaming to the configured sinks.
func NewRunCommand() *cobra.Command {
	sinksPath := ""
	duration := time.Duration(0)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scene",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return run(ctx, sinksPath)
		},
	}

	cmd.Flags().StringVar(&sinksPath, "sinks", sinksPath, "sinks file path; empty runs without sinks")
	cmd.Flags().DurationVar(&duration, "duration", duration, "stop after this long; zero runs until interrupted")
	return cmd
}

func load() (*network.Network, *network.Script, time.Duration, error) {
	cfg, err := config.LoadScene(scenePath)
	if err != nil {
		return nil, nil, 0, err
	}
	n, script, err := network.Build(cfg, virtualscene.New())
	if err != nil {
		return nil, nil, 0, pkgerrors.Wrapf(err, "build %s", scenePath)
	}
	return n, script, cfg.Tick(), nil
}

func run(ctx context.Context, sinksPath string) error {
	sinks, err := config.LoadSinks(sinksPath)
	if err != nil {
		return err
	}
	n, script, tick, err := load()
	if err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	if err := startSinks(ctx, wg, n, sinks); err != nil {
		n.Close()
		return err
	}
	n.PublishConfig()

	simulate(ctx, n, script, tick)

	// closing the publisher drains every sink
	n.Close()
	wg.Wait()
	logrus.WithField("network", n.Name()).Info("shutdown complete")
	return nil
}

// simulate ticks n at the scene rate, feeding due timeline events, until ctx is done.
func simulate(ctx context.Context, n *network.Network, script *network.Script, tick time.Duration) {
	log := logrus.WithField("network", n.Name())
	log.WithField("tick", tick).Info("simulation started")

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	elapsed := time.Duration(0)
	for {
		select {
		case <-ticker.C:
			for _, e := range script.Due(elapsed) {
				n.Enqueue(e)
			}
			n.Tick(tick)
			elapsed += tick
			if err := n.Validate(); err != nil {
				log.WithError(err).Error("topology invalid")
			}
		case <-ctx.Done():
			log.WithField("elapsed", elapsed).Info("simulation stopped")
			return
		}
	}
}

func startSinks(ctx context.Context, wg *sync.WaitGroup, n *network.Network, sinks config.Sinks) error {
	if sinks.NATS != nil {
		h, err := natshandler.New(*sinks.NATS, n)
		if err != nil {
			return err
		}
		nc, err := h.Connect()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Process(ctx, nc)
		}()
	}

	if sinks.Mongo != nil {
		h, err := mongodb.New(*sinks.Mongo, n)
		if err != nil {
			return err
		}
		dctx, cancel := context.WithTimeout(ctx, time.Duration(sinks.Mongo.Timeout)*time.Millisecond)
		store, err := mongodb.Dial(dctx, *sinks.Mongo)
		cancel()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Process(ctx, store)
		}()
	}

	if sinks.SQL != nil {
		h, err := sqldb.New(*sinks.SQL, n)
		if err != nil {
			return err
		}
		db, err := h.Open(ctx)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer db.Close()
			if err := h.Process(ctx, db); err != nil {
				logrus.WithError(err).Error("sql sink stopped")
			}
		}()
	}

	if sinks.Webhook != nil {
		h, err := web.New(*sinks.Webhook, n)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Process(ctx, &http.Client{})
		}()
	}

	if sinks.Web != nil {
		s, err := webservice.New(n)
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: sinks.Web.Address, Handler: s.Router()}
		wg.Add(2)
		go func() {
			defer wg.Done()
			logrus.WithField("address", srv.Addr).Info("webservice listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Error("webservice stopped")
			}
		}()
		go func() {
			defer wg.Done()
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logrus.WithError(err).Warn("webservice shutdown")
			}
		}()
	}
	return nil
}
