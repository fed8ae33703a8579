package nats

import (
	"context"
	"log/slog"
	"time"

	"graphsync/internal/config"

	libnats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type NATS struct {
	Logger *slog.Logger
	Config *config.Config

	JS jetstream.JetStream
	KV jetstream.KeyValue
}

func (n *NATS) Init(ctx context.Context) error {
	n.Logger = n.Logger.With("component", "nats.NATS")

	nc, err := libnats.Connect(n.Config.NATSURL,
		libnats.RetryOnFailedConnect(true),
		libnats.MaxReconnects(-1),
		libnats.ReconnectWait(time.Second),
	)
	if err != nil {
		return err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return err
	}

	n.JS = js

	if n.Config.NATSInit {
		if err := n.initBucket(ctx); err != nil {
			return err
		}
	}

	kv, err := js.KeyValue(ctx, n.Config.NATSBucket)
	if err != nil {
		return err
	}
	n.KV = kv

	return nil
}

func (n *NATS) HealthCheck(context.Context) error {
	_, err := n.JS.Conn().RTT()
	return err
}

func (n *NATS) Shutdown(context.Context) error {
	return n.JS.Conn().Drain()
}

func (n *NATS) initBucket(ctx context.Context) error {
	n.Logger.Info("Initializing NATS")

	_, err := n.JS.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  n.Config.NATSBucket,
		History: 1,
	})
	if err != nil {
		return err
	}
	n.Logger.Info("KeyValue bucket created or updated", "name", n.Config.NATSBucket)

	return nil
}
