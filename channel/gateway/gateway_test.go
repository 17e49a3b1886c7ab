package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/hail"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/channel/gateway"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

func testRide() *ride.Ride {
	return &ride.Ride{
		Entity:     hail.NewEntity(),
		ID:         id.NewRideID(),
		Number:     42,
		Status:     ride.StatusCreated,
		ClaimToken: ride.NewClaimToken(),
		Pickup:     "Central Station",
		Dropoff:    "Airport",
	}
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/broadcasts" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"msg-1","recipients":17}`))
	}))
	defer srv.Close()

	g := gateway.New(srv.URL, "key")
	receipt, err := g.Send(context.Background(), testRide())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.ProviderMessageID != "msg-1" {
		t.Errorf("message id = %q", receipt.ProviderMessageID)
	}
	if receipt.Recipients != 17 {
		t.Errorf("recipients = %d", receipt.Recipients)
	}
}

func TestSend_HardRejectionIsNotRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	g := gateway.New(srv.URL, "key")
	_, err := g.Send(context.Background(), testRide())
	if !errors.Is(err, hail.ErrSendRejected) {
		t.Errorf("err = %v, want ErrSendRejected", err)
	}
}

func TestSend_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := gateway.New(srv.URL, "key")
	_, err := g.Send(context.Background(), testRide())
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if errors.Is(err, hail.ErrSendRejected) {
		t.Error("5xx must not be classified as a hard rejection")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	if !gateway.New(healthy.URL, "key").HealthCheck(context.Background()) {
		t.Error("expected healthy")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	if gateway.New(down.URL, "key").HealthCheck(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := gateway.New("http://x", "k").Name(); got != channel.Primary {
		t.Errorf("name = %q, want %q", got, channel.Primary)
	}
}
