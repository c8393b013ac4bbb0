package mqtt

import "testing"

func TestBrokerAddr(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"mqtt://mosquitto:1883", "tcp://mosquitto:1883"},
		{"tcp://10.0.0.2:1883", "tcp://10.0.0.2:1883"},
		{"tls://broker:8883", "ssl://broker:8883"},
		{"ws://broker:9001/mqtt", "ws://broker:9001/mqtt"},
		{"mqtt://user:pw@broker:1883", "tcp://broker:1883"},
	}
	for _, tc := range cases {
		got, err := BrokerAddr(tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestBrokerAddrRejects(t *testing.T) {
	for _, in := range []string{"gopher://broker:70", "mqtt://", "::not a url"} {
		if _, err := BrokerAddr(in); err == nil {
			t.Fatalf("%s: expected error", in)
		}
	}
}
