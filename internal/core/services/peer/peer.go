// Package peer implements the per-participant session controller of the
// SFU: the Peer owns the Transport/Producer/Consumer registries for one
// conference participant, routes control-channel requests to them, and
// drives the RTCP receive/send pipelines and the adaptive report scheduler.
package peer

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"peercore/internal/core/domain"
	"peercore/internal/core/ports"
	"peercore/pkg/cache"
	"peercore/pkg/optimize"
)

// Config carries the two tunables the design note and §6 name explicitly.
// Defaults mirror the historical mediasoup values.
type Config struct {
	MaxVideoIntervalMs int
	RtcpBufferSize     int
}

func DefaultConfig() Config {
	return Config{MaxVideoIntervalMs: 1000, RtcpBufferSize: 1500}
}

// Peer is the controller described by the data model: it is the sole owner
// of the transports/producers/consumers registries and is driven entirely
// by its own run-loop goroutine, which is the idiomatic Go stand-in for the
// "single logical task/thread" the concurrency model requires. Every public
// method submits a closure to that loop and blocks for its result, so two
// operations on the same Peer never interleave.
type Peer struct {
	id   domain.ID
	name string
	cfg  Config

	listener ports.Listener
	notifier ports.Notifier
	log      *zap.Logger

	transports map[domain.ID]*Transport
	producers  map[domain.ID]*Producer
	consumers  map[domain.ID]*Consumer

	capabilities    *domain.RtpCapabilities
	hasCapabilities bool

	ssrcCache  *cache.Cache
	bufferPool *optimize.BytePool

	timer *time.Timer

	ops        chan func()
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool
	shutdownOnce sync.Once
}

// New constructs a Peer and starts its run-loop and its RTCP timer at the
// mandated initial interval of cfg.MaxVideoIntervalMs/2.
func New(id domain.ID, name string, cfg Config, listener ports.Listener, notifier ports.Notifier, log *zap.Logger) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:         id,
		name:       name,
		cfg:        cfg,
		listener:   listener,
		notifier:   notifier,
		log:        log.With(zap.Uint32("peerId", uint32(id))),
		transports: make(map[domain.ID]*Transport),
		producers:  make(map[domain.ID]*Producer),
		consumers:  make(map[domain.ID]*Consumer),
		ssrcCache:  cache.NewCache(time.Minute),
		bufferPool: optimize.NewBytePool(cfg.RtcpBufferSize),
		ops:        make(chan func()),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	p.timer = time.NewTimer(time.Duration(cfg.MaxVideoIntervalMs/2) * time.Millisecond)
	go p.run(ctx)
	return p
}

func (p *Peer) ID() domain.ID { return p.id }
func (p *Peer) Name() string  { return p.name }

// run is the single serialization point for every entry point into the
// Peer: submitted closures, inbound RTCP, and timer ticks all execute here,
// one at a time, in arrival order.
func (p *Peer) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case fn := <-p.ops:
			fn()
		case <-p.timer.C:
			p.onTimer()
		case <-ctx.Done():
			p.timer.Stop()
			return
		}
	}
}

// submit runs fn on the Peer's run-loop and waits for it to finish. It is
// the only way external callers reach Peer state.
func (p *Peer) submit(fn func()) {
	result := make(chan struct{})
	select {
	case p.ops <- func() { fn(); close(result) }:
		<-result
	case <-p.done:
	}
}

// Destroy is idempotent: producers close, then consumers, then transports,
// then the "close" notification fires, then the Listener is told. No
// operation may be invoked on the Peer after Destroy returns.
func (p *Peer) Destroy() {
	p.submit(func() {
		if p.closed {
			return
		}
		p.closed = true

		for id, prod := range p.producers {
			p.closeProducerLocked(id, prod)
		}
		for id, cons := range p.consumers {
			p.closeConsumerLocked(id, cons)
		}
		for id := range p.transports {
			delete(p.transports, id)
		}

		p.notify(domain.Notification{Event: "close", Data: map[string]string{"class": "Peer"}})
		p.listener.OnPeerClosed(p)
	})
	p.shutdownOnce.Do(func() {
		p.cancel()
		<-p.done
		p.ssrcCache.Stop()
	})
}

func (p *Peer) notify(n domain.Notification) {
	n.PeerID = p.id
	p.notifier.Notify(p.id, n)
}

// GetConsumer performs the linear SSRC search the spec prescribes,
// accelerated by an SSRC->Consumer memoization that is invalidated on every
// registry mutation touching consumers (§9 Open Question: the index
// changes no observable behavior, only its cost).
func (p *Peer) GetConsumer(ssrc uint32) *Consumer {
	var found *Consumer
	p.submit(func() {
		found = p.getConsumerLocked(ssrc)
	})
	return found
}

func (p *Peer) getConsumerLocked(ssrc uint32) *Consumer {
	if v, ok := p.ssrcCache.Get(ssrcKey(ssrc)); ok {
		if c, ok := v.(*Consumer); ok && p.consumers[c.id] == c {
			return c
		}
	}
	for _, c := range p.consumers {
		if c.rtpParameters.HasSsrc(ssrc) {
			p.ssrcCache.Set(ssrcKey(ssrc), c)
			return c
		}
	}
	return nil
}

func (p *Peer) invalidateSsrcCache() {
	p.ssrcCache.Clear()
}

func ssrcKey(ssrc uint32) string {
	return strconv.FormatUint(uint64(ssrc), 10)
}

// AddConsumer binds consumer to its peer-capabilities pointer, starts it
// forwarding, inserts it, and emits "newconsumer".
func (p *Peer) AddConsumer(c *Consumer, rtpParameters domain.RtpParameters, associatedProducerID domain.ID) domain.Response {
	var resp domain.Response
	p.submit(func() {
		if _, exists := p.consumers[c.id]; exists {
			resp = domain.Reject(domain.MsgConsumerNotFound)
			return
		}
		c.peerCapabilities = p.capabilities
		c.associatedProducerID = associatedProducerID
		c.send(rtpParameters)
		p.consumers[c.id] = c
		p.invalidateSsrcCache()

		dump := c.dump()
		p.notify(domain.Notification{Event: "newconsumer", Data: dump})
		resp = domain.Accept(nil)
	})
	return resp
}

// ToJson serializes the Peer per the PEER_DUMP shape.
func (p *Peer) ToJson() domain.PeerDump {
	var dump domain.PeerDump
	p.submit(func() {
		dump = domain.PeerDump{
			PeerID:       p.id,
			PeerName:     p.name,
			Capabilities: p.capabilities,
		}
		for _, t := range p.transports {
			dump.Transports = append(dump.Transports, t.dump())
		}
		for _, pr := range p.producers {
			dump.Producers = append(dump.Producers, pr.dump())
		}
		for _, c := range p.consumers {
			dump.Consumers = append(dump.Consumers, c.dump())
		}
	})
	return dump
}

// jitter draws an integer uniformly in [5,15] and scales interval by
// draw/10, the [0.5x,1.5x] spread RFC 3550 prescribes.
func jitter(interval int) time.Duration {
	draw := 5 + rand.Intn(11)
	ms := interval * draw / 10
	return time.Duration(ms) * time.Millisecond
}
