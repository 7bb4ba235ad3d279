// Package publisher sends signed events to a relay over a websocket and
// interprets the relay's OK verdict.
package publisher

import (
	"context"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/events"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// Default transport timeouts
const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadTimeout  = 10 * time.Second
)

// Options configures a Publisher.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	// VerifyEventID requires the OK frame to acknowledge the event that was sent.
	VerifyEventID bool
}

// Result is the relay's verdict for one event.
type Result struct {
	EventID  string
	Accepted bool
	Message  string
	Prefix   string
	Took     time.Duration
	// Notices holds NOTICE frames received while waiting for OK.
	Notices []string
}

// Publisher publishes events, one connection per event.
type Publisher struct {
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger
}

// New creates a publisher, filling zero timeouts with defaults.
func New(opts Options) *Publisher {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Publisher{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		logger: logger.New("publisher"),
	}
}

// FromConfig creates a publisher from the relay section.
func FromConfig(cfg config.RelayConfig) *Publisher {
	return New(Options{
		DialTimeout:   cfg.DialTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		ReadTimeout:   cfg.ReadTimeout,
		VerifyEventID: cfg.VerifyEventID,
	})
}

// Publish sends ["EVENT", evt] to relayURL and waits for the matching OK.
// A negative OK returns the Result together with a RelayRejected error;
// transport failures return RelayUnreachable.
func (p *Publisher) Publish(ctx context.Context, evt *nostr.Event, relayURL string) (Result, error) {
	start := time.Now()
	res := Result{EventID: evt.ID}

	frame, err := events.EncodeEventMessage(evt)
	if err != nil {
		return res, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.opts.DialTimeout)
	defer cancel()
	conn, _, err := p.dialer.DialContext(dialCtx, relayURL, nil)
	if err != nil {
		return res, p.transportError(ctx, "connect", err)
	}
	defer p.close(conn)

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(p.opts.WriteTimeout)) // nolint:errcheck
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return res, p.transportError(ctx, "write", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(p.opts.ReadTimeout)) // nolint:errcheck
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return res, p.transportError(ctx, "read", err)
		}

		msg, err := events.ParseFrame(raw)
		if err != nil {
			p.logger.Debug("ignoring malformed relay frame", zap.Error(err))
			continue
		}

		switch msg.Label {
		case constants.LabelOK:
			ok, err := msg.OK()
			if err != nil {
				return res, errors.RelayUnreachable("read", err)
			}
			res.Accepted = ok.Accepted
			res.Message = ok.Message
			res.Prefix = ok.Prefix
			res.Took = time.Since(start)
			return res, p.verdict(evt, ok)

		case constants.LabelNotice:
			res.Notices = append(res.Notices, msg.Text())
			p.logger.Info("relay notice", zap.String("notice", msg.Text()))

		default:
			p.logger.Debug("skipping relay frame", zap.String("label", msg.Label))
		}
	}
}

func (p *Publisher) verdict(evt *nostr.Event, ok events.OKResult) error {
	if p.opts.VerifyEventID && ok.EventID != evt.ID {
		return errors.RelayIDMismatch(evt.ID, ok.EventID)
	}
	if !ok.Accepted {
		p.logger.Warn("relay rejected event",
			zap.String("event_id", evt.ID),
			zap.Int("kind", evt.Kind),
			zap.String("reason", ok.Message),
		)
		return errors.RelayRejected(evt.ID, ok.Message)
	}
	p.logger.Info("relay accepted event",
		zap.String("event_id", evt.ID),
		zap.Int("kind", evt.Kind),
	)
	return nil
}

func (p *Publisher) transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errors.Interrupted("publishing to relay", ctx.Err())
	}
	return errors.RelayUnreachable(op, err)
}

func (p *Publisher) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) // nolint:errcheck
	_ = conn.Close()
}
