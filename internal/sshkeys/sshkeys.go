// Package sshkeys looks up the SSH public keys GitHub users publish.
package sshkeys

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/go-github/v74/github"
	log "github.com/sirupsen/logrus"
)

// Fetcher returns the public keys of GitHub users and caches them for its
// lifetime. It is safe for concurrent use.
type Fetcher struct {
	client *github.Client

	mu    sync.Mutex
	cache map[string][]string
}

// NewFetcher returns a Fetcher using client, or an unauthenticated client
// when client is nil.
func NewFetcher(client *github.Client) *Fetcher {
	if client == nil {
		client = github.NewClient(nil)
	}
	return &Fetcher{
		client: client,
		cache:  make(map[string][]string),
	}
}

// Keys returns the public keys of user in the order GitHub lists them.
func (f *Fetcher) Keys(ctx context.Context, user string) ([]string, error) {
	f.mu.Lock()
	cached, ok := f.cache[user]
	f.mu.Unlock()
	if ok {
		return append([]string(nil), cached...), nil
	}

	var keys []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := f.client.Users.ListKeys(ctx, user, opts)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("failed to get keys for GitHub user %s (status %d): %w", user, resp.StatusCode, err)
			}
			return nil, fmt.Errorf("failed to get keys for GitHub user %s: %w", user, err)
		}
		for _, k := range page {
			keys = append(keys, k.GetKey())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.WithFields(log.Fields{
		"user": user,
		"keys": len(keys),
	}).Debug("Fetched GitHub keys")

	f.mu.Lock()
	f.cache[user] = keys
	f.mu.Unlock()
	return append([]string(nil), keys...), nil
}
