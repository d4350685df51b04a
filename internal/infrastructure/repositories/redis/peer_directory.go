package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"peercore/internal/core/domain"
	"peercore/pkg/distributed"
)

// PeerDirectory is a cross-instance lookup of which SFU node currently owns
// a given Peer. It is an operational directory, not a store of conference
// state: losing it forces a client to re-resolve its Peer's node, it never
// reconstructs Transport/Producer/Consumer state (persistence of that state
// is an explicit non-goal).
type PeerDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPeerDirectory(client *redis.Client, ttl time.Duration) *PeerDirectory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PeerDirectory{client: client, ttl: ttl}
}

func peerDirectoryKey(id domain.ID) string {
	return fmt.Sprintf("peercore:peer-directory:%d", id)
}

func peerDirectoryLockKey(id domain.ID) string {
	return fmt.Sprintf("peercore:peer-directory-lock:%d", id)
}

// Register advertises that peerID is hosted on instanceAddr, renewable via
// TouchLease before the entry's ttl elapses. It briefly holds a distributed
// lock first, so a peer reconnecting to a second instance at the same
// moment its first connection is still being torn down never leaves the
// directory pointing at a stale instance.
func (d *PeerDirectory) Register(ctx context.Context, peerID domain.ID, instanceAddr string) error {
	lock := distributed.New(d.client, peerDirectoryLockKey(peerID), 5*time.Second)
	if err := lock.Lock(ctx, 2*time.Second); err != nil {
		return fmt.Errorf("peer directory register: %w", err)
	}
	defer lock.Unlock(ctx)

	if err := d.client.Set(ctx, peerDirectoryKey(peerID), instanceAddr, d.ttl).Err(); err != nil {
		return fmt.Errorf("peer directory register: %w", err)
	}
	return nil
}

// TouchLease renews the directory entry so a still-attached Peer is not
// reaped by ttl expiry.
func (d *PeerDirectory) TouchLease(ctx context.Context, peerID domain.ID) error {
	ok, err := d.client.Expire(ctx, peerDirectoryKey(peerID), d.ttl).Result()
	if err != nil {
		return fmt.Errorf("peer directory touch: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer directory touch: %w", domain.ErrPeerNotFound)
	}
	return nil
}

// Resolve returns the instance address hosting peerID, or ErrPeerNotFound
// if the directory has no (or an expired) entry.
func (d *PeerDirectory) Resolve(ctx context.Context, peerID domain.ID) (string, error) {
	addr, err := d.client.Get(ctx, peerDirectoryKey(peerID)).Result()
	if err == redis.Nil {
		return "", domain.ErrPeerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("peer directory resolve: %w", err)
	}
	return addr, nil
}

// Unregister removes the directory entry when a Peer is destroyed.
func (d *PeerDirectory) Unregister(ctx context.Context, peerID domain.ID) error {
	if err := d.client.Del(ctx, peerDirectoryKey(peerID)).Err(); err != nil {
		return fmt.Errorf("peer directory unregister: %w", err)
	}
	return nil
}
