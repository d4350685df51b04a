package domain

import (
	"encoding/json"
	"testing"
)

func TestRequestInternal_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name    string
		wire    string
		want    RequestInternal
	}{
		{
			name: "all three numeric ids present",
			wire: `{"transportId":7,"producerId":1,"consumerId":2}`,
			want: RequestInternal{
				TransportID: 7, HasTransportID: true,
				ProducerID: 1, HasProducerID: true,
				ConsumerID: 2, HasConsumerID: true,
			},
		},
		{
			name: "missing keys leave Has flags false",
			wire: `{}`,
			want: RequestInternal{},
		},
		{
			name: "quoted string id is rejected like a missing key",
			wire: `{"transportId":"7"}`,
			want: RequestInternal{},
		},
		{
			name: "null internal object leaves everything absent",
			wire: `null`,
			want: RequestInternal{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got RequestInternal
			if err := json.Unmarshal([]byte(tc.wire), &got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRequest_UnmarshalJSON_UsesWireFieldNames(t *testing.T) {
	wire := `{"methodId":"peer.createTransport","internal":{"transportId":7},"data":{"foo":"bar"}}`
	var req Request
	if err := json.Unmarshal([]byte(wire), &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != MethodPeerCreateTransport {
		t.Fatalf("expected method %q, got %q", MethodPeerCreateTransport, req.Method)
	}
	if !req.Internal.HasTransportID || req.Internal.TransportID != 7 {
		t.Fatalf("expected transportId 7 to decode, got %+v", req.Internal)
	}
	if len(req.Data) == 0 {
		t.Fatal("expected data payload to decode into raw message")
	}
}
