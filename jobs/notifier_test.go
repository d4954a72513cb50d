package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleSensorAlertSendsWhatsApp(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	notifier := NewNotifier(discardLogger(), SMTPConfig{}, WhatsAppConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+10000000000",
		BaseURL:    server.URL,
	})

	payload := SensorAlertPayload{
		SensorID:  "CS-A-T1",
		Warehouse: "CS-A",
		Metric:    "temperature",
		Value:     7.2,
		Threshold: 4.5,
		Phone:     "+911234509999",
		At:        time.Date(2026, time.August, 1, 4, 30, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	err = notifier.HandleSensorAlert(context.Background(), asynq.NewTask(TaskSensorAlert, raw))
	require.NoError(t, err)
	require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	require.Equal(t, "whatsapp:+911234509999", gotForm.Get("To"))
	require.Contains(t, gotForm.Get("Body"), "CS-A-T1")
	require.Contains(t, gotForm.Get("Body"), "temperature")
}

func TestHandleNotifyDispatchSendsEmail(t *testing.T) {
	var sentTo []string
	var sentMsg string
	notifier := NewNotifier(discardLogger(), SMTPConfig{Host: "mail.local", Port: 25, From: "no-reply@frostline.local"}, WhatsAppConfig{})
	notifier.sendMail = func(addr, from string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = string(msg)
		return nil
	}

	payload := NotifyDispatchPayload{
		DispatchCode: "FLCSD20260001",
		Customer:     "Northfield Traders",
		Email:        "accounts@northfield.example",
		DispatchDate: time.Date(2026, time.July, 12, 0, 0, 0, 0, time.UTC),
		GrandTotal:   "1,240.50",
		TotalBags:    60,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	err = notifier.HandleNotifyDispatch(context.Background(), asynq.NewTask(TaskNotifyDispatch, raw))
	require.NoError(t, err)
	require.Equal(t, []string{"accounts@northfield.example"}, sentTo)
	require.Contains(t, sentMsg, "FLCSD20260001")
	require.Contains(t, sentMsg, "12 Jul 2026")
}

func TestHandlersSkipRetryOnBadPayload(t *testing.T) {
	notifier := NewNotifier(discardLogger(), SMTPConfig{}, WhatsAppConfig{})
	for name, handler := range map[string]func(context.Context, *asynq.Task) error{
		TaskNotifyDispatch: notifier.HandleNotifyDispatch,
		TaskNotifyReceipt:  notifier.HandleNotifyReceipt,
		TaskSensorAlert:    notifier.HandleSensorAlert,
	} {
		err := handler(context.Background(), asynq.NewTask(name, []byte("{not json")))
		require.ErrorIs(t, err, asynq.SkipRetry, name)
	}
}

func TestWhatsAppDisabledWithoutSID(t *testing.T) {
	notifier := NewNotifier(discardLogger(), SMTPConfig{}, WhatsAppConfig{})
	err := notifier.whatsApp(context.Background(), "+911234509999", "body")
	require.NoError(t, err)
}
