package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventRunFailed, " "}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), EventScrapeComplete, "scrape", "ok"))
	require.NoError(t, n.Notify(context.Background(), EventRunFailed, "failed", "boom"))
	assert.Equal(t, []string{"failed"}, s.titles)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	good := &recordingSender{name: "good"}
	bad := &recordingSender{name: "bad", err: errors.New("webhook gone")}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.Notify(context.Background(), EventRelationsComplete, "relations", "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: webhook gone")
	assert.Equal(t, []string{"relations"}, good.titles, "other senders still receive it")
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventRunFailed, "t", "m"))
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Relations", "12 created"))
	assert.Equal(t, "**Relations**\n12 created", got["content"])
}

func TestTelegramSender(t *testing.T) {
	var path string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat-1")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Scrape", "done"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Equal(t, "*Scrape*\ndone", got["text"])
}

func TestSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
