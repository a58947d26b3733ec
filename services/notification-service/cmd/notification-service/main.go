package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mkleinsma/boekmij/libs/config"
	"github.com/mkleinsma/boekmij/libs/db"
	"github.com/mkleinsma/boekmij/libs/httpx"
	"github.com/mkleinsma/boekmij/libs/kafkax"
	otelx "github.com/mkleinsma/boekmij/libs/otel"
	"github.com/mkleinsma/boekmij/libs/runtime"
	"github.com/mkleinsma/boekmij/services/notification-service/internal/consumer"
	"github.com/mkleinsma/boekmij/services/notification-service/internal/email"
	"github.com/mkleinsma/boekmij/services/notification-service/internal/inbox"
	"github.com/mkleinsma/boekmij/services/notification-service/internal/outbox"
	"github.com/mkleinsma/boekmij/services/notification-service/internal/sms"
	"github.com/mkleinsma/boekmij/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	topicBooked    = "booking.appointment.booked.v1"
	topicCancelled = "booking.appointment.cancelled.v1"

	kindConfirmation = "booking_confirmation"
	kindCancellation = "cancellation_notice"
)

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	CompanyID     string `json:"company_id"`
	EmployeeID    string `json:"employee_id"`
	EmployeeName  string `json:"employee_name"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CancelledAt   string `json:"cancelled_at"`
	Reason        string `json:"reason"`
}

// buildMessage renders the customer-facing subject and body for an event.
func buildMessage(kind string, evt appointmentEvent) (subject string, body string) {
	when := evt.StartTime
	if t, err := time.Parse(time.RFC3339, evt.StartTime); err == nil {
		when = t.Format("Monday, January 2 at 3:04 PM")
	}
	with := ""
	if evt.EmployeeName != "" {
		with = " with " + evt.EmployeeName
	}

	switch kind {
	case kindCancellation:
		subject = "Your appointment has been cancelled"
		body = fmt.Sprintf("Your appointment%s on %s has been cancelled.", with, when)
		if evt.Reason != "" {
			body += " Reason: " + evt.Reason + "."
		}
	default:
		subject = "Your appointment is confirmed"
		body = fmt.Sprintf("Your appointment%s on %s is confirmed.", with, when)
	}
	if evt.CustomerName != "" {
		body = fmt.Sprintf("Hi %s,\n\n%s", evt.CustomerName, body)
	}
	return subject, body
}

func writeOutboxSent(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, evt appointmentEvent, kind, channel, providerID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if strings.TrimSpace(providerID) == "" {
		providerID = "unknown"
	}
	eventPayload, err := json.Marshal(map[string]any{
		"appointment_id": evt.AppointmentID,
		"company_id":     evt.CompanyID,
		"kind":           kind,
		"channel":        channel,
		"provider_id":    providerID,
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
		EventType:     "notification.sent.v1",
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func writeOutboxFailed(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, evt appointmentEvent, kind, channel, reason string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventPayload, err := json.Marshal(map[string]any{
		"appointment_id": evt.AppointmentID,
		"company_id":     evt.CompanyID,
		"kind":           kind,
		"channel":        channel,
		"error_reason":   reason,
		"failed_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
		EventType:     "notification.failed.v1",
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@boekmij.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)
	emailProviderID := "smtp"

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	smsWebhookURL := config.String("SMS_WEBHOOK_URL", "")
	smsWebhookToken := config.String("SMS_WEBHOOK_TOKEN", "")
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	case "noop":
		smsSender = sms.NewNoopSender()
	default:
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	}

	failSuffix := config.String("NOTIFICATION_FAIL_SUFFIX", "")
	smsEnabled := strings.TrimSpace(config.String("SMS_ENABLED", "")) == "true"

	handleEvent := func(kind string) consumer.Handler {
		return func(ctx context.Context, msg kafka.Message) error {
			var evt appointmentEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if evt.AppointmentID == "" || evt.CompanyID == "" {
				logger.Error("missing event fields", "topic", msg.Topic)
				return nil
			}
			if evt.CustomerEmail == "" && evt.CustomerPhone == "" {
				// Walk-in without contact details; record and move on.
				logger.Info("no recipient for notification", "appointment_id", evt.AppointmentID, "kind", kind)
				return notificationsRepo.Insert(ctx, storage.Notification{
					AppointmentID: evt.AppointmentID,
					CompanyID:     evt.CompanyID,
					Kind:          kind,
					Channel:       "none",
					Status:        "skipped",
				})
			}

			subject, body := buildMessage(kind, evt)

			deliver := func(channel, recipient string, send func() error) error {
				status := "sent"
				failureReason := ""
				providerID := ""
				if failSuffix != "" && strings.HasSuffix(recipient, failSuffix) {
					status = "failed"
					failureReason = "simulated failure"
				} else if err := send(); err != nil {
					status = "failed"
					failureReason = err.Error()
					logger.Error("send failed", "err", err, "channel", channel, "recipient", recipient)
				} else {
					if channel == "email" {
						providerID = emailProviderID
					} else {
						providerID = smsSender.ProviderID()
					}
				}

				if err := notificationsRepo.Insert(ctx, storage.Notification{
					AppointmentID: evt.AppointmentID,
					CompanyID:     evt.CompanyID,
					Kind:          kind,
					Channel:       channel,
					Recipient:     recipient,
					Payload:       map[string]any{"subject": subject},
					Status:        status,
				}); err != nil {
					logger.Error("failed to persist notification", "err", err)
					return err
				}

				if status == "failed" {
					return writeOutboxFailed(ctx, pool, outboxRepo, evt, kind, channel, failureReason)
				}
				return writeOutboxSent(ctx, pool, outboxRepo, evt, kind, channel, providerID)
			}

			if evt.CustomerEmail != "" {
				if err := deliver("email", evt.CustomerEmail, func() error {
					return emailSender.Send(evt.CustomerEmail, subject, body)
				}); err != nil {
					return err
				}
			}
			if smsEnabled && evt.CustomerPhone != "" {
				if err := deliver("sms", evt.CustomerPhone, func() error {
					return smsSender.Send(ctx, evt.CustomerPhone, body)
				}); err != nil {
					return err
				}
			}

			logger.Info("event processed", "appointment_id", evt.AppointmentID, "kind", kind)
			return nil
		}
	}

	startConsumer := func(topic, kind string) {
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}
		c := consumer.New(logger, inboxRepo, cfg, handleEvent(kind))
		go c.Run(ctx)
	}
	startConsumer(config.String("KAFKA_TOPIC_BOOKED", topicBooked), kindConfirmation)
	startConsumer(config.String("KAFKA_TOPIC_CANCELLED", topicCancelled), kindCancellation)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
