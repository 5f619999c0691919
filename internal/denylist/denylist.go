package denylist

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set holding denied origins
const DefaultRedisKey = "loginguard:denylist:ips"

// Checker reports whether an origin is denylisted
type Checker interface {
	IsDenied(ctx context.Context, ip string) bool
}

// Static is a fixed set of denied origins
type Static struct {
	ips map[string]struct{}
}

// NewStatic creates a Static denylist; blank entries are ignored
func NewStatic(ips []string) *Static {
	s := &Static{ips: make(map[string]struct{}, len(ips))}
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			s.ips[ip] = struct{}{}
		}
	}
	return s
}

// IsDenied implements Checker
func (s *Static) IsDenied(ctx context.Context, ip string) bool {
	_, ok := s.ips[ip]
	return ok
}

// SetMembership is the subset of the redis client used by RedisDenylist
type SetMembership interface {
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
}

// RedisDenylist looks origins up in a redis set. Lookups that fail are
// treated as not denied.
type RedisDenylist struct {
	client SetMembership
	key    string
	logger *slog.Logger
}

// NewRedisClient parses url and creates a client
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// NewRedisDenylist creates a RedisDenylist; an empty key uses DefaultRedisKey
func NewRedisDenylist(client SetMembership, key string, logger *slog.Logger) *RedisDenylist {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisDenylist{client: client, key: key, logger: logger}
}

// IsDenied implements Checker
func (r *RedisDenylist) IsDenied(ctx context.Context, ip string) bool {
	denied, err := r.client.SIsMember(ctx, r.key, ip).Result()
	if err != nil {
		r.logger.Warn("denylist lookup failed, allowing origin",
			slog.String("ip", ip),
			slog.Any("error", err))
		return false
	}
	return denied
}

// Chain reports an origin denied when any of its checkers does
type Chain []Checker

// IsDenied implements Checker
func (c Chain) IsDenied(ctx context.Context, ip string) bool {
	for _, checker := range c {
		if checker != nil && checker.IsDenied(ctx, ip) {
			return true
		}
	}
	return false
}
