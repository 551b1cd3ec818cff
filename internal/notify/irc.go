package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lrstanley/girc"

	"github.com/soyeahso/idpforge/internal/config"
	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/logging"
	"github.com/soyeahso/idpforge/internal/version"
)

// maxLineLen keeps PRIVMSG lines under the 512 byte protocol limit.
const maxLineLen = 400

// IRC posts summaries to one channel. Each Notify opens its own
// connection, joins, posts and quits.
type IRC struct {
	cfg config.IRCConfig
	log *logging.Logger
}

// NewIRC validates cfg and returns the notifier.
func NewIRC(cfg config.IRCConfig, log *logging.Logger) (*IRC, error) {
	if cfg.Server == "" || cfg.Nick == "" || cfg.Channel == "" {
		return nil, errors.New("irc notifier needs server, nick and channel")
	}
	if !girc.IsValidChannel(cfg.Channel) {
		return nil, fmt.Errorf("irc notifier: invalid channel %q", cfg.Channel)
	}
	if cfg.Port == 0 {
		cfg.Port = 6667
		if cfg.UseTLS {
			cfg.Port = 6697
		}
	}
	return &IRC{cfg: cfg, log: log.Sub("notify.irc")}, nil
}

func (n *IRC) clientConfig() girc.Config {
	gc := girc.Config{
		Server:  n.cfg.Server,
		Port:    n.cfg.Port,
		Nick:    n.cfg.Nick,
		User:    n.cfg.Nick,
		Name:    "idpforge notifier",
		SSL:     n.cfg.UseTLS,
		Version: version.GeneratedBy(),
	}
	if n.cfg.UseTLS {
		gc.TLSConfig = &tls.Config{ServerName: n.cfg.Server}
	}
	if n.cfg.SASL && n.cfg.Password != "" {
		gc.SASL = &girc.SASLPlain{User: n.cfg.Nick, Pass: n.cfg.Password}
	} else if n.cfg.Password != "" {
		gc.ServerPass = n.cfg.Password
	}
	return gc
}

// Notify posts the run summary.
func (n *IRC) Notify(ctx context.Context, run *domain.Run) error {
	lines := splitMessage(strings.Join(Summary(run), "\n"), maxLineLen)

	client := girc.New(n.clientConfig())
	var posted atomic.Bool
	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, _ girc.Event) {
		c.Cmd.Join(n.cfg.Channel)
		for _, l := range lines {
			c.Cmd.Message(n.cfg.Channel, l)
		}
		posted.Store(true)
		c.Quit("run " + string(run.Status))
	})

	n.log.Info().Str("server", n.cfg.Server).Str("channel", n.cfg.Channel).Int("lines", len(lines)).Msg("posting run summary")

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case err := <-errCh:
		if err != nil && !posted.Load() {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		<-errCh
		return ctx.Err()
	}
}
