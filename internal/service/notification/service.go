package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/repository"
	"github.com/jwalitptl/clinic-queue-api/pkg/messaging"
)

// Service persists notifications and pushes an in-app copy to the
// recipient's identity topic. Callers invoke it through the side-effect
// dispatcher, so a failure here never fails the mutation that produced it.
type Service interface {
	Create(ctx context.Context, n *model.Notification) error
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
}

type service struct {
	repo   repository.NotificationRepository
	broker messaging.Broker
}

func NewService(repo repository.NotificationRepository, broker messaging.Broker) Service {
	return &service{
		repo:   repo,
		broker: broker,
	}
}

func (s *service) Create(ctx context.Context, n *model.Notification) error {
	if err := s.validate(n); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	topic := model.PatientTopic(n.RecipientID)
	if n.RecipientType == model.RecipientDoctor {
		topic = model.DoctorTopic(n.RecipientID)
	}

	if err := s.broker.Publish(ctx, topic, n); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (s *service) ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListForRecipient(ctx, recipientID, limit)
}

func (s *service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, recipientID)
}

func (s *service) validate(n *model.Notification) error {
	if n.RecipientID == uuid.Nil {
		return fmt.Errorf("recipient ID is required")
	}
	if n.RecipientType == "" {
		return fmt.Errorf("recipient type is required")
	}
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	if n.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
