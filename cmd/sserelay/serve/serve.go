// Package servecmder provides the relay server command.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/sserelay/pkg/config"
	"github.com/papercomputeco/sserelay/pkg/eventstream"
	"github.com/papercomputeco/sserelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/sserelay/pkg/eventstream/nop"
	"github.com/papercomputeco/sserelay/pkg/eventstream/redis"
	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/proxy"
)

type serveCommander struct {
	listen    string
	upstream  string
	apiKey    string
	timeout   string
	provider  string
	brokers   []string
	topic     string
	redisAddr string
	logFile   string
	debug     bool

	viper  *viper.Viper
	logger *slog.Logger
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagAPIKey,
	config.FlagTimeout,
	config.FlagEventStream,
	config.FlagBrokers,
	config.FlagTopic,
	config.FlagRedisAddr,
}

const serveLongDesc string = `Run the relay server.

Every POST is forwarded to the same path on the configured upstream. The
upstream event stream is normalized into "data: <payload>\n\n" frames and
streamed back when the request asks for a stream ("stream": true or
Accept: text/event-stream), or collected into a single body otherwise.

The upstream credential comes from the client's Authorization header, or
from relay.api_key. Edits to relay.api_key in config.toml are applied
without a restart.

Finished relays are published as events (nop, kafka, redis).

Examples:
  sserelay serve
  sserelay serve --upstream https://api.anthropic.com --listen :9000
  sserelay serve --eventstream-provider kafka --kafka-brokers localhost:9092
  sserelay serve --eventstream-provider redis --redis-addr localhost:6379`

const serveShortDesc string = "Run the relay server"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.RelayFlags, serveFlags)

			cmder.viper = v
			cmder.listen = v.GetString("relay.listen")
			cmder.upstream = v.GetString("relay.upstream")
			cmder.apiKey = v.GetString("relay.api_key")
			cmder.timeout = v.GetString("relay.timeout")
			cmder.provider = v.GetString("eventstream.provider")
			cmder.brokers = config.SplitList(v.GetStringSlice("eventstream.brokers"))
			cmder.topic = v.GetString("eventstream.topic")
			cmder.redisAddr = v.GetString("eventstream.redis_addr")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.RelayFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagTimeout, &cmder.timeout)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagEventStream, &cmder.provider)
	config.AddStringSliceFlag(cmd, config.RelayFlags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagTopic, &cmder.topic)
	config.AddStringFlag(cmd, config.RelayFlags, config.FlagRedisAddr, &cmder.redisAddr)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	timeout, err := config.ParseTimeout(c.timeout)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(c.publisherConfig(), c.logger)
	if err != nil {
		return err
	}

	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "sserelay"
	}

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
		APIKey:      c.apiKey,
		Timeout:     timeout,
		Instance:    instance,
		Publisher:   publisher,
	}, c.logger)
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("creating relay: %w", err)
	}
	defer p.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if file := c.viper.ConfigFileUsed(); file != "" {
		go func() {
			err := watchAPIKey(ctx, c.viper, file, p.SetAPIKey, c.logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	c.logger.Info("starting relay",
		"listen", c.listen,
		"upstream", c.upstream,
		"eventstream", c.provider,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down relay")
		return nil
	}
}

// newLogger returns the pretty console logger, teed to a JSON log file when
// --log-file is set. The returned func closes the file.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
	)

	if c.logFile == "" {
		return console, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)

	return logger.Multi(console, file), func() { _ = f.Close() }, nil
}

// publisherSettings carries the eventstream settings newPublisher needs.
type publisherSettings struct {
	provider  string
	brokers   []string
	topic     string
	redisAddr string
}

func (c *serveCommander) publisherConfig() publisherSettings {
	return publisherSettings{
		provider:  c.provider,
		brokers:   c.brokers,
		topic:     c.topic,
		redisAddr: c.redisAddr,
	}
}

// newPublisher builds the relay event publisher for the configured provider.
func newPublisher(s publisherSettings, log *slog.Logger) (eventstream.Publisher, error) {
	switch s.provider {
	case "", config.EventStreamNop:
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: s.brokers,
			Topic:   s.topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing relay events to kafka", "brokers", s.brokers, "topic", s.topic)
		return pub, nil

	case config.EventStreamRedis:
		pub, err := redis.NewPublisher(redis.Config{
			Addr:   s.redisAddr,
			Stream: s.topic,
			Logger: log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis publisher: %w", err)
		}
		log.Info("publishing relay events to redis", "addr", s.redisAddr, "stream", s.topic)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown eventstream provider: %q", s.provider)
	}
}
