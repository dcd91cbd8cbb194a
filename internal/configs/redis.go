package config

import (
	"fmt"
	"strings"

	"github.com/redis/rueidis"
)

// NewRedisClient connects to addr, which is either host:port or a
// redis:// URL.
func NewRedisClient(addr string) (rueidis.Client, error) {
	opt := rueidis.ClientOption{InitAddress: []string{addr}}
	if strings.Contains(addr, "://") {
		parsed, err := rueidis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	}
	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return client, nil
}
