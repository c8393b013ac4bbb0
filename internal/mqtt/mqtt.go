package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the minimal surface the car link needs. It enables unit
// testing without a live broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Client struct {
	cli mqtt.Client
}

// BrokerAddr converts homenavi style broker URLs (mqtt://, tls://, ws://)
// into the scheme paho expects.
func BrokerAddr(brokerURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(brokerURL))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("broker url %q has no host", brokerURL)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "":
		return "tcp://" + u.Host, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + u.Host, nil
	case "ws", "wss":
		return u.Scheme + "://" + u.Host + u.Path, nil
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

func Connect(brokerURL, clientID string) (*Client, error) {
	server, err := BrokerAddr(brokerURL)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(strings.TrimSpace(brokerURL))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	if strings.TrimSpace(clientID) == "" {
		clientID = "car-remote-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.OnConnect = func(_ mqtt.Client) { slog.Info("mqtt connected", "broker", server) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { slog.Warn("mqtt connection lost", "error", err) }
	if u != nil && u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if strings.HasPrefix(server, "ssl://") || strings.HasPrefix(server, "wss://") {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) // TODO: load the car network CA instead of skipping verification
	}

	cli := mqtt.NewClient(opts)
	tok := cli.Connect()
	if ok := tok.WaitTimeout(15 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect to %s timed out", server)
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{cli: cli}, nil
}

// Publish sends at QoS 0 without retain: a stale drive command must never be
// replayed to a car that reconnects.
func (c *Client) Publish(topic string, payload []byte) error {
	t := c.cli.Publish(topic, 0, false, payload)
	if t.WaitTimeout(5*time.Second) && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (c *Client) Close() {
	if c == nil || c.cli == nil {
		return
	}
	c.cli.Disconnect(1000)
}
