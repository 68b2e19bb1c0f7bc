package quotefeed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ZigZagExchange/zigzag-swap/internal/config"
	"github.com/ZigZagExchange/zigzag-swap/internal/quote"
	"github.com/ZigZagExchange/zigzag-swap/internal/token"
)

// Publisher mirrors selected quotes into Redis so external consumers
// (dashboards, alerting) can watch prices without polling the engine.
// With no Redis address configured every call is a no-op.
type Publisher struct {
	rdb     *redis.Client
	stream  string
	snapKey string
	log     *zap.Logger
}

func NewPublisher(cfg *config.Config, log *zap.Logger) *Publisher {
	p := &Publisher{
		stream:  cfg.Redis.Stream,
		snapKey: cfg.Redis.SnapKey,
		log:     log,
	}
	if cfg.Redis.Addr == "" {
		return p
	}
	p.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	if p.stream == "" {
		p.stream = "quote:stream"
	}
	if p.snapKey == "" {
		p.snapKey = "quote:snap:"
	}
	return p
}

func (p *Publisher) Enabled() bool { return p.rdb != nil }

// PublishQuote writes the latest selection as a per-pair HASH snapshot
// and appends it to the capped stream.
func (p *Publisher) PublishQuote(ctx context.Context, pair token.Pair, q quote.Quote) error {
	if p.rdb == nil {
		return nil
	}
	tsMs := time.Now().UnixMilli()
	fields := map[string]interface{}{
		"pair":      pair.Key(),
		"sell":      pair.Sell.Symbol,
		"buy":       pair.Buy.Symbol,
		"price":     q.Price,
		"synthetic": q.Synthetic,
		"ts_ms":     tsMs,
	}
	if q.HasOrder() {
		fields["maker"] = q.Order.User
		fields["expires"] = q.Order.ExpirationTimeSeconds
	}
	if err := p.rdb.HSet(ctx, p.snapKey+pair.Key(), fields).Err(); err != nil {
		return err
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: 10000,
		Approx: true,
		Values: fields,
	}).Err()
}

func (p *Publisher) Close() error {
	if p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
