package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/jobs"
	"github.com/noah-isme/demandes-api/pkg/messaging"
)

// JobKindDeliverNotification is the queue job kind handled by Deliver.
const JobKindDeliverNotification = "notification.deliver"

type notificationStore interface {
	CreateBatch(ctx context.Context, items []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (*models.Notification, error)
}

type recipientDirectory interface {
	ListActiveIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type deliveryPayload struct {
	Notification models.Notification
	Reference    string
}

type audience int

const (
	audienceNone audience = iota
	audienceRole
	audienceReviewers
	audienceRequester
	audienceAssignee
)

type route struct {
	audience audience
	role     models.UserRole
}

var notificationRoutes = map[models.DemandeStatus]route{
	models.StatusSubmitted:                {audienceRole, models.RoleFieldAuthority},
	models.StatusReassigned:               {audienceAssignee, models.RoleFieldAuthority},
	models.StatusFieldValidated:           {audienceRole, models.RoleFieldAuthority},
	models.StatusTransmittedToDirectorate: {audienceRole, models.RoleGeneralDirectorate},
	models.StatusDirectorateValidated:     {audienceRole, models.RoleGeneralDirectorate},
	models.StatusUnderDirectorateReview:   {audienceRole, models.RoleGeneralDirectorate},
	models.StatusTransmittedToMinister:    {audienceRole, models.RoleMinister},
	models.StatusPendingMinisterSignature: {audienceRole, models.RoleMinister},
	models.StatusPendingAdvisory:          {audience: audienceReviewers},
	models.StatusUnderFieldReview:         {audience: audienceRequester},
	models.StatusReturned:                 {audience: audienceRequester},
	models.StatusComplementRequested:      {audience: audienceRequester},
	models.StatusSigned:                   {audience: audienceRequester},
	models.StatusClosed:                   {audience: audienceRequester},
}

// NotificationService turns committed transitions into inbox rows and
// queued deliveries to the external transport.
type NotificationService struct {
	store     notificationStore
	users     recipientDirectory
	publisher messaging.Publisher
	queue     jobEnqueuer
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs the dispatcher. A nil publisher drops deliveries.
func NewNotificationService(store notificationStore, users recipientDirectory, publisher messaging.Publisher, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:     store,
		users:     users,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// UseQueue attaches the delivery queue. Without one, rows are still written
// but nothing is published.
func (s *NotificationService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// OnTransition implements TransitionListener. Failures are logged only.
func (s *NotificationService) OnTransition(ctx context.Context, event models.TransitionEvent) {
	recipients, err := s.recipients(ctx, event)
	if err != nil {
		s.logger.Error("resolve notification recipients",
			zap.String("demande_id", event.DemandeID),
			zap.String("status", string(event.To)),
			zap.Error(err),
		)
		return
	}
	if len(recipients) == 0 {
		return
	}

	demandeID := event.DemandeID
	text := notificationText(event)
	items := make([]models.Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		items = append(items, models.Notification{
			RecipientID: recipientID,
			DemandeID:   &demandeID,
			Type:        event.To,
			Message:     text,
			CreatedAt:   event.At,
		})
	}
	if err := s.store.CreateBatch(ctx, items); err != nil {
		s.logger.Error("store notifications", zap.String("demande_id", event.DemandeID), zap.Error(err))
		return
	}
	if s.queue == nil {
		return
	}
	for _, item := range items {
		job := jobs.Job{
			ID:      item.ID,
			Kind:    JobKindDeliverNotification,
			Payload: deliveryPayload{Notification: item, Reference: event.Reference},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.metrics.RecordDelivery(false)
			s.logger.Warn("enqueue notification delivery",
				zap.String("notification_id", item.ID),
				zap.Error(err),
			)
		}
	}
}

// recipients resolves the audience of the destination status, excluding the actor.
func (s *NotificationService) recipients(ctx context.Context, event models.TransitionEvent) ([]string, error) {
	r, ok := notificationRoutes[event.To]
	if !ok {
		return nil, nil
	}
	var candidates []string
	switch r.audience {
	case audienceRole:
		ids, err := s.users.ListActiveIDsByRole(ctx, r.role)
		if err != nil {
			return nil, err
		}
		candidates = ids
	case audienceReviewers:
		candidates = event.ReviewerIDs
	case audienceRequester:
		candidates = []string{event.RequesterID}
	case audienceAssignee:
		if event.AssigneeID != "" {
			candidates = []string{event.AssigneeID}
			break
		}
		ids, err := s.users.ListActiveIDsByRole(ctx, r.role)
		if err != nil {
			return nil, err
		}
		candidates = ids
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == "" || id == event.Actor.ID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func notificationText(event models.TransitionEvent) string {
	status := strings.ToLower(strings.ReplaceAll(string(event.To), "_", " "))
	return fmt.Sprintf("Request %s is now %s", event.Reference, status)
}

// Deliver is the queue handler publishing one notification.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(deliveryPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	n := payload.Notification
	msg := messaging.Message{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Reference:   payload.Reference,
		Type:        string(n.Type),
		Text:        n.Message,
		CreatedAt:   n.CreatedAt,
	}
	if n.DemandeID != nil {
		msg.DemandeID = *n.DemandeID
	}
	err := s.publisher.Publish(ctx, msg)
	s.metrics.RecordDelivery(err == nil)
	return err
}

// DeadLetter logs a delivery that exhausted its retries. The inbox row remains.
func (s *NotificationService) DeadLetter(job jobs.Job, err error) {
	s.logger.Error("notification delivery abandoned",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}

// List returns the caller's inbox, newest first.
func (s *NotificationService) List(ctx context.Context, actor models.Actor, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	limit, offset, pagination := paginate(page, pageSize, 100)
	items, total, err := s.store.List(ctx, models.NotificationFilter{
		RecipientID: actor.ID,
		UnreadOnly:  unreadOnly,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	pagination.TotalCount = total
	return items, &pagination, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Notification, error) {
	n, err := s.store.MarkRead(ctx, id, actor.ID, s.now().UTC())
	if err != nil {
		return nil, notFoundOr(err, "notification not found", "failed to update notification")
	}
	return n, nil
}
