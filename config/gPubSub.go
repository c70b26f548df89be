package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// PaymentNotificationMessage is what the notification service (SMS/email, external)
// consumes from PAYMENT_NOTIFICATIONS_TOPIC.
type PaymentNotificationMessage struct {
	Event         string    `json:"event"`
	LandlordId    string    `json:"landlord_id"`
	PaymentId     string    `json:"payment_id,omitempty"`
	InvoiceId     string    `json:"invoice_id,omitempty"`
	TenantId      string    `json:"tenant_id,omitempty"`
	Purpose       string    `json:"purpose,omitempty"`
	TransactionId string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	InvoiceStatus string    `json:"invoice_status,omitempty"`
	Metadata      []byte    `json:"metadata,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationId string    `json:"correlation_id,omitempty"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// GetPubSubClient returns a Pub/Sub client, initializing with retries if needed.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}
		if attempt >= 3 {
			return nil, err
		}

		sleep := time.Second * time.Duration(1<<attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// PaymentNotificationsTopic is empty when landlord notifications are disabled.
func PaymentNotificationsTopic() string {
	return os.Getenv("PAYMENT_NOTIFICATIONS_TOPIC")
}

// PublishPaymentNotification publishes and returns the Pub/Sub server-assigned message ID.
func PublishPaymentNotification(ctx context.Context, msg PaymentNotificationMessage) (string, error) {
	topicName := PaymentNotificationsTopic()
	if topicName == "" {
		return "", errors.New("PAYMENT_NOTIFICATIONS_TOPIC is required")
	}

	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"event":       msg.Event,
			"landlord_id": msg.LandlordId,
		},
	})
	return result.Get(ctx)
}
