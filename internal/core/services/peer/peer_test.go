package peer

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"go.uber.org/zap"

	"peercore/internal/core/domain"
	"peercore/internal/core/ports"
)

// rawPsfbAfb builds the fixed 12-byte RFC 4585 PSFB header (FMT=15, the
// application-defined AFB subtype) carrying mediaSsrc as its "SSRC of media
// source" field, with no further FCI — enough to exercise psfbAfbFallthrough
// without needing a real REMB/vendor-specific payload.
func rawPsfbAfb(mediaSsrc uint32) []byte {
	b := make([]byte, 12)
	b[0] = 0x8F // V=2, P=0, FMT=15 (AFB)
	b[1] = 206  // PT=PSFB
	binary.BigEndian.PutUint16(b[2:4], 2)
	binary.BigEndian.PutUint32(b[4:8], 0x11111111) // SSRC of packet sender
	binary.BigEndian.PutUint32(b[8:12], mediaSsrc)
	return b
}

// fakeListener records every callback invocation for assertions, and is
// safe to call from the Peer's own run-loop goroutine.
type fakeListener struct {
	mu sync.Mutex

	closedCalls            int
	capsCalls               int
	producerParamsCalls     []domain.ID
	producerClosedOrder     []domain.ID
	consumerClosedOrder     []domain.ID
	transportClosedOrder    []domain.ID
	fullFrameRequired       []domain.ID
	receiverReports         []domain.ID
	senderReports           []domain.ID
	feedbacks               []domain.ID

	onCapabilities func(*domain.RtpCapabilities)
}

func (f *fakeListener) OnPeerClosed(ports.PeerHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedCalls++
}

func (f *fakeListener) OnPeerCapabilities(_ ports.PeerHandle, caps *domain.RtpCapabilities) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capsCalls++
	if f.onCapabilities != nil {
		f.onCapabilities(caps)
	}
}

func (f *fakeListener) OnPeerProducerParameters(_ ports.PeerHandle, id domain.ID, _ domain.RtpParameters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.producerParamsCalls = append(f.producerParamsCalls, id)
}

func (f *fakeListener) OnPeerProducerClosed(_ ports.PeerHandle, id domain.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.producerClosedOrder = append(f.producerClosedOrder, id)
}

func (f *fakeListener) OnPeerConsumerClosed(_ ports.PeerHandle, id domain.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumerClosedOrder = append(f.consumerClosedOrder, id)
}

func (f *fakeListener) OnPeerRtpPacket(ports.PeerHandle, domain.ID, []byte) {}

func (f *fakeListener) OnPeerRtcpReceiverReport(_ ports.PeerHandle, consumerID domain.ID, _ rtcp.ReceptionReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiverReports = append(f.receiverReports, consumerID)
}

func (f *fakeListener) OnPeerRtcpSenderReport(_ ports.PeerHandle, producerID domain.ID, _ *rtcp.SenderReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.senderReports = append(f.senderReports, producerID)
}

func (f *fakeListener) OnPeerRtcpFeedback(_ ports.PeerHandle, consumerID domain.ID, _ rtcp.Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks = append(f.feedbacks, consumerID)
}

func (f *fakeListener) OnFullFrameRequired(_ ports.PeerHandle, consumerID domain.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullFrameRequired = append(f.fullFrameRequired, consumerID)
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (f *fakeNotifier) Notify(_ domain.ID, n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

func (f *fakeNotifier) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notes))
	for i, n := range f.notes {
		out[i] = n.Event
	}
	return out
}

func newTestPeer(t *testing.T) (*Peer, *fakeListener, *fakeNotifier) {
	t.Helper()
	l := &fakeListener{}
	n := &fakeNotifier{}
	cfg := DefaultConfig()
	p := New(42, "alice", cfg, l, n, zap.NewNop())
	t.Cleanup(p.Destroy)
	return p, l, n
}

func capabilitiesRequest(t *testing.T, codecs ...domain.RtpCodecCapability) domain.Request {
	t.Helper()
	data, err := json.Marshal(domain.RtpCapabilities{Codecs: codecs})
	if err != nil {
		t.Fatal(err)
	}
	return domain.Request{Method: domain.MethodPeerSetCapabilities, Data: data}
}

func TestSetCapabilities_AcceptsOnceAndCallsListenerOnce(t *testing.T) {
	p, l, _ := newTestPeer(t)

	resp := p.HandleRequest(capabilitiesRequest(t,
		domain.RtpCodecCapability{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000},
		domain.RtpCodecCapability{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	))
	if !resp.Ok {
		t.Fatalf("expected accept, got reject: %s", resp.Reason)
	}
	if !p.HasCapabilities() {
		t.Fatal("expected hasCapabilities true")
	}
	if l.capsCalls != 1 {
		t.Fatalf("expected OnPeerCapabilities called once, got %d", l.capsCalls)
	}

	resp2 := p.HandleRequest(capabilitiesRequest(t))
	if resp2.Ok || resp2.Reason != domain.MsgCapabilitiesAlreadySet {
		t.Fatalf("expected reject %q, got %+v", domain.MsgCapabilitiesAlreadySet, resp2)
	}
}

func TestCreateTransport_RejectsDuplicate(t *testing.T) {
	p, _, _ := newTestPeer(t)

	req := domain.Request{
		Method:   domain.MethodPeerCreateTransport,
		Internal: domain.RequestInternal{TransportID: 7, HasTransportID: true},
	}
	if resp := p.HandleRequest(req); !resp.Ok {
		t.Fatalf("expected accept, got %+v", resp)
	}
	resp := p.HandleRequest(req)
	if resp.Ok || resp.Reason != domain.MsgTransportAlreadyExists {
		t.Fatalf("expected reject %q, got %+v", domain.MsgTransportAlreadyExists, resp)
	}
}

func TestCreateProducer_BeforeCapabilities_Rejected(t *testing.T) {
	p, _, _ := newTestPeer(t)

	p.HandleRequest(domain.Request{
		Method:   domain.MethodPeerCreateTransport,
		Internal: domain.RequestInternal{TransportID: 1, HasTransportID: true},
	})

	data, _ := json.Marshal(map[string]string{"kind": "audio"})
	resp := p.HandleRequest(domain.Request{
		Method: domain.MethodPeerCreateProducer,
		Internal: domain.RequestInternal{
			ProducerID: 1, HasProducerID: true,
			TransportID: 1, HasTransportID: true,
		},
		Data: data,
	})
	if resp.Ok || resp.Reason != domain.MsgCapabilitiesNotSet {
		t.Fatalf("expected reject %q, got %+v", domain.MsgCapabilitiesNotSet, resp)
	}
}

func TestGetConsumer_ResolvesBySsrcIncludingFecAndRtx(t *testing.T) {
	p, _, _ := newTestPeer(t)
	c := NewConsumer(1, domain.KindVideo, p)
	p.AddConsumer(c, domain.RtpParameters{
		Encodings: []domain.RtpEncodingParameters{
			{Ssrc: 1000, Fec: &domain.RtpFecParameters{Ssrc: 1001}, Rtx: &domain.RtxParameters{Ssrc: 1002}},
		},
	}, 0)

	for _, ssrc := range []uint32{1000, 1001, 1002} {
		if got := p.GetConsumer(ssrc); got == nil || got.id != 1 {
			t.Fatalf("expected consumer 1 for ssrc %d, got %+v", ssrc, got)
		}
	}
	if got := p.GetConsumer(9999); got != nil {
		t.Fatalf("expected no consumer for unknown ssrc, got %+v", got)
	}
}

func TestRtcpReceive_ReceiverReport_UnknownSsrcDropsOnlyThatReport(t *testing.T) {
	p, l, _ := newTestPeer(t)
	c := NewConsumer(1, domain.KindAudio, p)
	p.AddConsumer(c, domain.RtpParameters{
		Encodings: []domain.RtpEncodingParameters{{Ssrc: 1000}},
	}, 0)

	req := domain.Request{Method: domain.MethodPeerCreateTransport, Internal: domain.RequestInternal{TransportID: 1, HasTransportID: true}}
	p.HandleRequest(req)

	var transport *Transport
	p.submit(func() { transport = p.transports[1] })

	p.OnTransportRtcpPacket(transport, []rtcp.Packet{
		&rtcp.ReceiverReport{Reports: []rtcp.ReceptionReport{{SSRC: 1000}, {SSRC: 9999}}},
	})

	if len(l.receiverReports) != 1 || l.receiverReports[0] != 1 {
		t.Fatalf("expected exactly one receiver report for consumer 1, got %+v", l.receiverReports)
	}
}

func TestDestroy_OrderIsProducersThenConsumersThenTransportsThenClose(t *testing.T) {
	l := &fakeListener{}
	n := &fakeNotifier{}
	p := New(1, "bob", DefaultConfig(), l, n, zap.NewNop())

	p.HandleRequest(domain.Request{Method: domain.MethodPeerCreateTransport, Internal: domain.RequestInternal{TransportID: 1, HasTransportID: true}})
	p.HandleRequest(capabilitiesRequest(t, domain.RtpCodecCapability{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000}))

	data, _ := json.Marshal(map[string]string{"kind": "audio"})
	p.HandleRequest(domain.Request{
		Method:   domain.MethodPeerCreateProducer,
		Internal: domain.RequestInternal{ProducerID: 1, HasProducerID: true, TransportID: 1, HasTransportID: true},
		Data:     data,
	})
	c := NewConsumer(1, domain.KindAudio, p)
	p.AddConsumer(c, domain.RtpParameters{Encodings: []domain.RtpEncodingParameters{{Ssrc: 500}}}, 1)

	p.Destroy()

	events := n.events()
	if len(events) == 0 || events[len(events)-1] != "close" {
		t.Fatalf("expected final notification to be close, got %+v", events)
	}
	if l.closedCalls != 1 {
		t.Fatalf("expected OnPeerClosed called once, got %d", l.closedCalls)
	}
	if len(l.producerClosedOrder) != 1 || len(l.consumerClosedOrder) != 1 {
		t.Fatalf("expected exactly one producer-closed and one consumer-closed event")
	}
}

func TestHandleRequest_TransportClose_DoesNotDeadlock(t *testing.T) {
	p, _, _ := newTestPeer(t)

	p.HandleRequest(domain.Request{
		Method:   domain.MethodPeerCreateTransport,
		Internal: domain.RequestInternal{TransportID: 1, HasTransportID: true},
	})

	done := make(chan domain.Response, 1)
	go func() {
		done <- p.HandleRequest(domain.Request{
			Method:   domain.MethodTransportClose,
			Internal: domain.RequestInternal{TransportID: 1, HasTransportID: true},
		})
	}()

	select {
	case resp := <-done:
		if !resp.Ok {
			t.Fatalf("expected accept, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("HandleRequest(TRANSPORT_CLOSE) deadlocked")
	}

	var exists bool
	p.submit(func() { _, exists = p.transports[1] })
	if exists {
		t.Fatal("expected transport removed from registry")
	}
}

func TestHandleRequest_ProducerClose_DoesNotDeadlock(t *testing.T) {
	p, l, _ := newTestPeer(t)

	p.HandleRequest(domain.Request{
		Method:   domain.MethodPeerCreateTransport,
		Internal: domain.RequestInternal{TransportID: 1, HasTransportID: true},
	})
	p.HandleRequest(capabilitiesRequest(t, domain.RtpCodecCapability{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000}))

	data, _ := json.Marshal(map[string]string{"kind": "audio"})
	p.HandleRequest(domain.Request{
		Method:   domain.MethodPeerCreateProducer,
		Internal: domain.RequestInternal{ProducerID: 1, HasProducerID: true, TransportID: 1, HasTransportID: true},
		Data:     data,
	})

	done := make(chan domain.Response, 1)
	go func() {
		done <- p.HandleRequest(domain.Request{
			Method:   domain.MethodProducerClose,
			Internal: domain.RequestInternal{ProducerID: 1, HasProducerID: true},
		})
	}()

	select {
	case resp := <-done:
		if !resp.Ok {
			t.Fatalf("expected accept, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("HandleRequest(PRODUCER_CLOSE) deadlocked")
	}

	if len(l.producerClosedOrder) != 1 || l.producerClosedOrder[0] != 1 {
		t.Fatalf("expected OnPeerProducerClosed(1) exactly once, got %+v", l.producerClosedOrder)
	}
}

func TestRtcpReceive_PsfbAfbFallthrough_RoutesByRealMediaSsrc(t *testing.T) {
	p, l, _ := newTestPeer(t)
	c := NewConsumer(1, domain.KindVideo, p)
	p.AddConsumer(c, domain.RtpParameters{
		Encodings: []domain.RtpEncodingParameters{{Ssrc: 5000}},
	}, 0)

	raw := rtcp.RawPacket(rawPsfbAfb(5000))
	p.OnTransportRtcpPacket(nil, []rtcp.Packet{&raw})

	if len(l.feedbacks) != 1 || l.feedbacks[0] != 1 {
		t.Fatalf("expected AFB feedback routed to consumer 1 via its real media ssrc, got %+v", l.feedbacks)
	}
}

func TestRtcpReceive_PsfbAfbFallthrough_UnknownSsrcDropped(t *testing.T) {
	p, l, _ := newTestPeer(t)
	c := NewConsumer(1, domain.KindVideo, p)
	p.AddConsumer(c, domain.RtpParameters{
		Encodings: []domain.RtpEncodingParameters{{Ssrc: 5000}},
	}, 0)

	raw := rtcp.RawPacket(rawPsfbAfb(9999))
	p.OnTransportRtcpPacket(nil, []rtcp.Packet{&raw})

	if len(l.feedbacks) != 0 {
		t.Fatalf("expected no feedback routed for an unknown media ssrc, got %+v", l.feedbacks)
	}
}

func TestJitter_StaysWithinRfc3550Bounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		got := jitter(1000)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jitter(1000) = %v, want within [500ms, 1500ms]", got)
		}
	}
}

func TestScheduler_PreJitterIntervalFromAggregateRate(t *testing.T) {
	// 360000/rateKbps with rate=1200kbps -> 300ms, per the literal scenario.
	cfg := Config{MaxVideoIntervalMs: 5000, RtcpBufferSize: 1500}
	interval := cfg.MaxVideoIntervalMs
	rateKbps := 1200.0
	computed := int(360000 / rateKbps)
	if computed < interval {
		interval = computed
	}
	if interval != 300 {
		t.Fatalf("expected pre-jitter interval 300ms, got %dms", interval)
	}
}
