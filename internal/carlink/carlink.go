// Package carlink delivers control commands to the car, fire-and-forget.
//
// Every link sends on its own goroutine and swallows failures: they are
// logged at debug level and counted, never returned. The next user action
// is the recovery path.
package carlink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/salah0eldin/autonmous-iot-car/internal/control"
	"github.com/salah0eldin/autonmous-iot-car/internal/mqtt"
	"github.com/salah0eldin/autonmous-iot-car/internal/observability"
)

const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// HTTPLink issues GET {base}{path}?{param}={value} against the car's
// embedded web server.
type HTTPLink struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewHTTPLink(baseURL string, timeout time.Duration) (*HTTPLink, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse car url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("car url %q must be http(s)", baseURL)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPLink{base: u, client: &http.Client{}, timeout: timeout}, nil
}

// URL returns the full request URL for cmd.
func (l *HTTPLink) URL(cmd control.Command) string {
	u := *l.base
	u.Path = strings.TrimRight(u.Path, "/") + cmd.Path
	u.RawQuery = cmd.Query().Encode()
	return u.String()
}

// Send implements control.Sender.
func (l *HTTPLink) Send(cmd control.Command) {
	observability.CommandsTotal.WithLabelValues(string(cmd.Kind), TransportHTTP).Inc()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.do(cmd); err != nil {
			observability.SendFailures.WithLabelValues(TransportHTTP).Inc()
			slog.Debug("car command not delivered", "cmd", cmd.String(), "error", err)
		}
	}()
}

func (l *HTTPLink) do(cmd control.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL(cmd), nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("car responded %s", resp.Status)
	}
	return nil
}

// Close waits for in-flight sends. It is only meant for shutdown.
func (l *HTTPLink) Close() {
	l.wg.Wait()
}

// MQTTLink publishes the same query string the HTTP link would send to
// {topic}/cmd or {topic}/speed for cars that listen on a broker.
type MQTTLink struct {
	pub   mqtt.Publisher
	topic string
	wg    sync.WaitGroup
}

func NewMQTTLink(pub mqtt.Publisher, topic string) *MQTTLink {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" {
		topic = "car"
	}
	return &MQTTLink{pub: pub, topic: topic}
}

func (l *MQTTLink) Topic(cmd control.Command) string {
	return l.topic + cmd.Path
}

// Send implements control.Sender.
func (l *MQTTLink) Send(cmd control.Command) {
	observability.CommandsTotal.WithLabelValues(string(cmd.Kind), TransportMQTT).Inc()
	topic := l.Topic(cmd)
	payload := []byte(cmd.Query().Encode())
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.pub.Publish(topic, payload); err != nil {
			observability.SendFailures.WithLabelValues(TransportMQTT).Inc()
			slog.Debug("car command not published", "topic", topic, "error", err)
		}
	}()
}

func (l *MQTTLink) Close() {
	l.wg.Wait()
}

// Fanout hands every command to each sender in order.
type Fanout []control.Sender

func (f Fanout) Send(cmd control.Command) {
	for _, s := range f {
		if s != nil {
			s.Send(cmd)
		}
	}
}
