package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/frostline-erp/frostline/internal/jobs"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// WhatsAppConfig holds the Twilio-style WhatsApp gateway settings. Empty SID
// disables WhatsApp sends.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
}

// Notifier sends customer notifications over email and WhatsApp.
type Notifier struct {
	logger   *slog.Logger
	smtp     SMTPConfig
	whatsapp WhatsAppConfig
	httpc    *http.Client
	printer  *message.Printer
	metrics  *jobmetrics.Metrics
	sendMail func(addr string, from string, to []string, msg []byte) error
}

// WithMetrics attaches job metrics to the notifier.
func (n *Notifier) WithMetrics(metrics *jobmetrics.Metrics) *Notifier {
	n.metrics = metrics
	return n
}

// NewNotifier constructs Notifier.
func NewNotifier(logger *slog.Logger, smtpCfg SMTPConfig, waCfg WhatsAppConfig) *Notifier {
	if waCfg.BaseURL == "" {
		waCfg.BaseURL = "https://api.twilio.com"
	}
	return &Notifier{
		logger:   logger,
		smtp:     smtpCfg,
		whatsapp: waCfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		printer:  message.NewPrinter(language.English),
		sendMail: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (n *Notifier) email(to, subject, body string) error {
	if n.smtp.Host == "" || to == "" {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", n.smtp.Host, n.smtp.Port)
	msg := strings.Join([]string{
		"From: " + n.smtp.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	return n.sendMail(addr, n.smtp.From, []string{to}, []byte(msg))
}

func (n *Notifier) whatsApp(ctx context.Context, to, body string) error {
	if n.whatsapp.AccountSID == "" || to == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.whatsapp.BaseURL, n.whatsapp.AccountSID)
	form := url.Values{}
	form.Set("From", "whatsapp:"+n.whatsapp.FromNumber)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(n.whatsapp.AccountSID, n.whatsapp.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned %s", resp.Status)
	}
	return nil
}

// HandleNotifyDispatch processes TaskNotifyDispatch tasks.
func (n *Notifier) HandleNotifyDispatch(ctx context.Context, t *asynq.Task) error {
	var payload NotifyDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	body := n.printer.Sprintf("Dear %s, your dispatch %s dated %s for %v bags has been processed. Amount due: %s.",
		payload.Customer, payload.DispatchCode, payload.DispatchDate.Format("02 Jan 2006"),
		payload.TotalBags, payload.GrandTotal)

	if err := n.email(payload.Email, "Dispatch "+payload.DispatchCode+" processed", body); err != nil {
		n.logger.Error("dispatch email failed", slog.String("code", payload.DispatchCode), slog.Any("error", err))
		return err
	}
	if err := n.whatsApp(ctx, payload.Phone, body); err != nil {
		n.logger.Error("dispatch whatsapp failed", slog.String("code", payload.DispatchCode), slog.Any("error", err))
		return err
	}
	return nil
}

// HandleNotifyReceipt processes TaskNotifyReceipt tasks.
func (n *Notifier) HandleNotifyReceipt(ctx context.Context, t *asynq.Task) error {
	var payload NotifyReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	body := n.printer.Sprintf("Dear %s, your receipt %s dated %s for %v bags has been recorded.",
		payload.Customer, payload.ReceiptCode, payload.ReceiptDate.Format("02 Jan 2006"), payload.TotalBags)

	if err := n.email(payload.Email, "Receipt "+payload.ReceiptCode+" recorded", body); err != nil {
		n.logger.Error("receipt email failed", slog.String("code", payload.ReceiptCode), slog.Any("error", err))
		return err
	}
	if err := n.whatsApp(ctx, payload.Phone, body); err != nil {
		n.logger.Error("receipt whatsapp failed", slog.String("code", payload.ReceiptCode), slog.Any("error", err))
		return err
	}
	return nil
}

// HandleSensorAlert processes TaskSensorAlert tasks.
func (n *Notifier) HandleSensorAlert(ctx context.Context, t *asynq.Task) error {
	var payload SensorAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	body := n.printer.Sprintf("ALERT: sensor %s in %s reports %s %v beyond threshold %v at %s.",
		payload.SensorID, payload.Warehouse, payload.Metric, payload.Value, payload.Threshold,
		payload.At.Format("02 Jan 2006 15:04"))
	if err := n.whatsApp(ctx, payload.Phone, body); err != nil {
		n.logger.Error("sensor alert failed", slog.String("sensor", payload.SensorID), slog.Any("error", err))
		return err
	}
	n.metrics.AddAlert(payload.Warehouse, "whatsapp")
	return nil
}
