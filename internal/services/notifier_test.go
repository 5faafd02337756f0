package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickyNotifier struct{ calls atomic.Int32 }

func (p *panickyNotifier) OrderConfirmed(context.Context, OrderNotification) error {
	p.calls.Add(1)
	panic("boom")
}

func (p *panickyNotifier) OrderCompleted(context.Context, OrderNotification) error {
	p.calls.Add(1)
	return errors.New("smtp down")
}

func TestDispatcherSurvivesNotifierFailures(t *testing.T) {
	n := &panickyNotifier{}
	d := NewDispatcher(n, 0)

	d.Dispatch(NotifyOrderConfirmed, OrderNotification{OrderID: "1"})
	d.Dispatch(NotifyOrderCompleted, OrderNotification{OrderID: "1"})
	d.Dispatch("unknown", OrderNotification{OrderID: "1"})
	d.Wait()

	assert.Equal(t, int32(2), n.calls.Load())

	var nilDispatcher *Dispatcher
	nilDispatcher.Dispatch(NotifyOrderConfirmed, OrderNotification{})
	nilDispatcher.Wait()
}

func TestMultiNotifierRunsAllMembers(t *testing.T) {
	rec := &recordingNotifier{}
	m := MultiNotifier{rec, &panickyNotifier{}}

	err := m.OrderCompleted(context.Background(), OrderNotification{OrderID: "1"})
	assert.Error(t, err)
	_, completed := rec.counts()
	assert.Equal(t, 1, completed)
}

func TestTelegramSendsEscapedOrderMessage(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramService("TOKEN", "42")
	tg.baseURL = srv.URL
	require.True(t, tg.Enabled())

	err := tg.OrderConfirmed(context.Background(), OrderNotification{
		OrderID:      "abc",
		CustomerName: "<script>",
		TotalPrice:   2_000_000,
		Items:        []OrderItemNotification{{Name: "Pixel & Co", Color: "Black", Quantity: 2, Price: 1_000_000}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "&lt;script&gt;")
	assert.Contains(t, got.Text, "Pixel &amp; Co")
	assert.Contains(t, got.Text, "2,000,000 VND")
	assert.False(t, strings.Contains(got.Text, "<script>"))
}

func TestTelegramDisabledAndErrors(t *testing.T) {
	assert.NoError(t, NewTelegramService("", "").SendToAdmin(context.Background(), "hi"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegramService("TOKEN", "42")
	tg.baseURL = srv.URL
	assert.Error(t, tg.SendToAdmin(context.Background(), "hi"))
}
