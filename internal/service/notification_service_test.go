package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/pkg/jobs"
	"github.com/noah-isme/demandes-api/pkg/messaging"
)

type recordingNotificationStore struct {
	items     []models.Notification
	createErr error
}

func (s *recordingNotificationStore) CreateBatch(_ context.Context, items []models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	for i := range items {
		items[i].ID = "n-" + items[i].RecipientID
	}
	s.items = append(s.items, items...)
	return nil
}

func (s *recordingNotificationStore) List(context.Context, models.NotificationFilter) ([]models.Notification, int, error) {
	return s.items, len(s.items), nil
}

func (s *recordingNotificationStore) MarkRead(_ context.Context, id, recipientID string, at time.Time) (*models.Notification, error) {
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].RecipientID == recipientID {
			s.items[i].Read = true
			s.items[i].ReadAt = &at
			return &s.items[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type recordingPublisher struct {
	messages []messaging.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg messaging.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func recipientsOf(items []models.Notification) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.RecipientID)
	}
	sort.Strings(out)
	return out
}

func TestNotificationRouting(t *testing.T) {
	base := models.TransitionEvent{
		DemandeID:   "d-1",
		Reference:   "AUT-20261018-000001",
		RequesterID: requesterID,
		At:          time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC),
	}
	cases := []struct {
		name  string
		to    models.DemandeStatus
		actor models.Actor
		extra []string
		want  []string
	}{
		{"submitted goes to every field authority", models.StatusSubmitted, requester, nil, []string{fieldID, fieldID2}},
		{"actor is never notified", models.StatusFieldValidated, field, nil, []string{fieldID2}},
		{"directorate statuses", models.StatusTransmittedToDirectorate, field, nil, []string{directorID}},
		{"minister statuses", models.StatusPendingMinisterSignature, models.SystemActor(), nil, []string{ministerID}},
		{"advisory goes to assigned reviewers only", models.StatusPendingAdvisory, minister, []string{reviewerBID}, []string{reviewerBID}},
		{"requester statuses", models.StatusSigned, minister, nil, []string{requesterID}},
		{"actor excluded by id whatever the role", models.StatusSubmitted, models.Actor{ID: fieldID, Role: models.RoleAdministrator}, nil, []string{fieldID2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &recordingNotificationStore{}
			queue := &recordingQueue{}
			svc := NewNotificationService(store, newMemStore(), nil, nil, nil)
			svc.UseQueue(queue)

			event := base
			event.To = tc.to
			event.Actor = tc.actor
			event.ReviewerIDs = tc.extra
			svc.OnTransition(context.Background(), event)

			assert.Equal(t, tc.want, recipientsOf(store.items))
			require.Len(t, queue.jobs, len(tc.want))
			for _, job := range queue.jobs {
				assert.Equal(t, JobKindDeliverNotification, job.Kind)
			}
			for _, n := range store.items {
				assert.Equal(t, tc.to, n.Type)
				assert.Contains(t, n.Message, "AUT-20261018-000001")
			}
		})
	}
}

func TestNotificationReassignedGoesToAssignee(t *testing.T) {
	cases := []struct {
		name     string
		assignee string
		want     []string
	}{
		{"assignee only", fieldID2, []string{fieldID2}},
		{"no assignee falls back to field authorities", "", []string{fieldID, fieldID2}},
		{"assignee acting is not notified", directorID, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &recordingNotificationStore{}
			svc := NewNotificationService(store, newMemStore(), nil, nil, nil)

			svc.OnTransition(context.Background(), models.TransitionEvent{
				DemandeID:  "d-1",
				Reference:  "AUT-20261018-000002",
				Action:     "reassign",
				From:       models.StatusSubmitted,
				To:         models.StatusReassigned,
				Actor:      director,
				AssigneeID: tc.assignee,
				At:         time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC),
			})
			assert.Equal(t, tc.want, recipientsOf(store.items))
		})
	}
}

func TestWorkflowReassignEventCarriesAssignee(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	events := &eventRecorder{}
	engine := newTestEngine(store, &stubRenderer{}, events)
	d := store.seed(models.StatusSubmitted)

	_, err := engine.Reassign(ctx, d.ID, director, fieldID2, "")
	require.NoError(t, err)
	require.Equal(t, 1, events.count())
	assert.Equal(t, fieldID2, events.events[0].AssigneeID)
}

func TestNotificationFailuresAreSwallowed(t *testing.T) {
	store := &recordingNotificationStore{createErr: errors.New("db down")}
	queue := &recordingQueue{}
	svc := NewNotificationService(store, newMemStore(), nil, nil, nil)
	svc.UseQueue(queue)

	svc.OnTransition(context.Background(), models.TransitionEvent{To: models.StatusClosed, RequesterID: requesterID, Actor: minister})
	assert.Empty(t, queue.jobs)

	store.createErr = nil
	queue.err = jobs.ErrQueueFull
	svc.OnTransition(context.Background(), models.TransitionEvent{To: models.StatusClosed, RequesterID: requesterID, Actor: minister})
	assert.Len(t, store.items, 1)
}

func TestNotificationDeliverPublishes(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := NewNotificationService(&recordingNotificationStore{}, newMemStore(), publisher, NewMetricsService(), nil)
	demandeID := "d-9"
	job := jobs.Job{
		ID:   "n-1",
		Kind: JobKindDeliverNotification,
		Payload: deliveryPayload{
			Notification: models.Notification{ID: "n-1", RecipientID: requesterID, DemandeID: &demandeID, Type: models.StatusSigned, Message: "signed"},
			Reference:    "AUT-20261018-000009",
		},
	}
	require.NoError(t, svc.Deliver(context.Background(), job))
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "d-9", publisher.messages[0].DemandeID)
	assert.Equal(t, "SIGNED", publisher.messages[0].Type)
	assert.Equal(t, "AUT-20261018-000009", publisher.messages[0].Reference)

	publisher.err = errors.New("broker unavailable")
	assert.Error(t, svc.Deliver(context.Background(), job))
	assert.Error(t, svc.Deliver(context.Background(), jobs.Job{ID: "bad", Payload: 42}))
}

func TestNotificationMarkRead(t *testing.T) {
	store := &recordingNotificationStore{}
	svc := NewNotificationService(store, newMemStore(), nil, nil, nil)
	svc.OnTransition(context.Background(), models.TransitionEvent{To: models.StatusReturned, RequesterID: requesterID, Actor: director, Reference: "AUT-1"})
	require.Len(t, store.items, 1)

	_, err := svc.MarkRead(context.Background(), director, store.items[0].ID)
	require.Error(t, err)

	n, err := svc.MarkRead(context.Background(), requester, store.items[0].ID)
	require.NoError(t, err)
	assert.True(t, n.Read)

	items, page, err := svc.List(context.Background(), requester, false, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)
}
