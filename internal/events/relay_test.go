package events

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keenon/AddBiomechanics-sub000/internal/auth"
	"github.com/keenon/AddBiomechanics-sub000/pkg/retry"
)

func testRelay(t *testing.T, a *auth.Auth) (*Broadcaster, *httptest.Server) {
	t.Helper()
	b := NewBroadcaster()
	ts := httptest.NewServer(NewRelay(b, a).Handler())
	t.Cleanup(ts.Close)
	return b, ts
}

func testClient(ts *httptest.Server, token string) *Client {
	return NewClient(ClientConfig{
		BaseURL:   ts.URL,
		AuthToken: token,
		RetryConfig: retry.Config{
			MaxAttempts: 2,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
		},
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	})
}

func waitForSubscribers(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers (have %d)", n, b.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelayRoundTrip(t *testing.T) {
	b, ts := testRelay(t, nil)
	c := testClient(ts, "")

	received := make(chan Message, 4)
	unsub, err := c.Subscribe("/DEV/UPDATE/#", func(m Message) { received <- m })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	waitForSubscribers(t, b, 1)

	if err := c.Publish(context.Background(), Message{Topic: "/DEV/UPDATE/a/b", Message: []byte(`{"key":"a/b"}`)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Does not match the subscription.
	if err := c.Publish(context.Background(), Message{Topic: "/DEV/DELETE/a/b", Message: []byte(`{"key":"a/b"}`)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-received:
		if m.Topic != "/DEV/UPDATE/a/b" {
			t.Errorf("topic = %q", m.Topic)
		}
		if string(m.Message) != `{"key":"a/b"}` {
			t.Errorf("message = %s", m.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}

	select {
	case m := <-received:
		t.Errorf("unexpected message %s", m.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRelayRequiresToken(t *testing.T) {
	a, _ := auth.New("secret")
	_, ts := testRelay(t, a)

	anon := testClient(ts, "")
	if err := anon.Publish(context.Background(), Message{Topic: "/DEV/UPDATE/x"}); err == nil {
		t.Error("expected anonymous publish to fail")
	}

	token, _ := a.Issue("tester", "DEV", time.Hour)
	c := testClient(ts, token)
	if err := c.Publish(context.Background(), Message{Topic: "/DEV/UPDATE/x"}); err != nil {
		t.Errorf("authorized publish failed: %v", err)
	}
	if err := c.Publish(context.Background(), Message{Topic: "/PROD/UPDATE/x"}); err == nil {
		t.Error("expected publish outside token deployment to fail")
	}
}

func TestRelayRejectsBadBody(t *testing.T) {
	_, ts := testRelay(t, nil)
	resp, err := http.Post(ts.URL+"/api/v1/publish", "application/json", bytes.NewBufferString(`{"message":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRelayHealth(t *testing.T) {
	_, ts := testRelay(t, nil)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClientReconnects(t *testing.T) {
	b, ts := testRelay(t, nil)
	c := testClient(ts, "")

	received := make(chan Message, 4)
	unsub, _ := c.Subscribe("/#", func(m Message) { received <- m })
	defer unsub()
	waitForSubscribers(t, b, 1)

	ts.CloseClientConnections()
	// Wait for the stream to come back.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.Publish(context.Background(), Message{Topic: "/DEV/UPDATE/again"})
		select {
		case <-received:
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("client did not reconnect")
		}
	}
}
