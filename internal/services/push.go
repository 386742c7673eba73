package services

import (
	"context"
	"fmt"

	"habit-streak-backend/internal/config"
	"habit-streak-backend/internal/repository"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

type apnsClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// PushNotifier sends APNs alerts to users that registered a device token
type PushNotifier struct {
	client apnsClient
	topic  string
	users  repository.UserStore
}

// NewPushNotifier builds a notifier from configuration. It returns nil when
// no certificate is configured.
func NewPushNotifier(cfg config.APNSConfig, users repository.UserStore) (*PushNotifier, error) {
	if cfg.CertPath == "" {
		return nil, nil
	}

	cert, err := certificate.FromP12File(cfg.CertPath, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}

	client := apns2.NewClient(cert)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushNotifier{client: client, topic: cfg.Topic, users: users}, nil
}

// Push sends text to the user's device. Users without a push token are skipped.
func (p *PushNotifier) Push(ctx context.Context, userID, text string) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user for push: %w", err)
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return nil
	}

	notification := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       p.topic,
		Payload:     payload.NewPayload().Alert(text).Sound("default"),
	}

	res, err := p.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}
