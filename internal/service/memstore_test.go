package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/repository"
	"github.com/noah-isme/demandes-api/internal/workflow"
)

const (
	requesterID  = "11111111-1111-4111-8111-111111111111"
	otherReqID   = "11111111-1111-4111-8111-222222222222"
	fieldID      = "22222222-2222-4222-8222-222222222222"
	fieldID2     = "22222222-2222-4222-8222-333333333333"
	directorID   = "33333333-3333-4333-8333-333333333333"
	ministerID   = "44444444-4444-4444-8444-444444444444"
	reviewerAID  = "55555555-5555-4555-8555-555555555555"
	reviewerBID  = "55555555-5555-4555-8555-666666666666"
	adminID      = "66666666-6666-4666-8666-666666666666"
	inactiveRvID = "55555555-5555-4555-8555-777777777777"
)

var (
	requester = models.Actor{ID: requesterID, Role: models.RoleRequester}
	field     = models.Actor{ID: fieldID, Role: models.RoleFieldAuthority}
	director  = models.Actor{ID: directorID, Role: models.RoleGeneralDirectorate}
	minister  = models.Actor{ID: ministerID, Role: models.RoleMinister}
	reviewerA = models.Actor{ID: reviewerAID, Role: models.RoleAdvisoryBoardMember}
	reviewerB = models.Actor{ID: reviewerBID, Role: models.RoleAdvisoryBoardMember}
	admin     = models.Actor{ID: adminID, Role: models.RoleAdministrator}
)

const productionPayload = `{"company_name":"Acme Mining","product":"Copper","site_address":"Plot 7, Industrial Zone","region":"North","annual_capacity_tonnes":1200,"workforce":40}`

// memStore is an in-memory stand-in for the Postgres repositories. Commit
// honours the same compare-and-set contract as WorkflowRepository.
type memStore struct {
	mu       sync.Mutex
	demandes map[string]*models.Demande
	audit    map[string][]models.AuditEntry
	boards   []*models.AdvisoryBoard
	opinions []*models.AdvisoryOpinion
	archives map[string]*models.ArchiveRecord
	users    map[string]models.User
	seq      int
}

func newMemStore() *memStore {
	s := &memStore{
		demandes: make(map[string]*models.Demande),
		audit:    make(map[string][]models.AuditEntry),
		archives: make(map[string]*models.ArchiveRecord),
		users:    make(map[string]models.User),
	}
	for _, u := range []models.User{
		{ID: requesterID, Email: "req@example.com", FullName: "Rita Requester", Role: models.RoleRequester, Active: true},
		{ID: otherReqID, Email: "other@example.com", FullName: "Omar Other", Role: models.RoleRequester, Active: true},
		{ID: fieldID, Email: "field@example.com", FullName: "Fiona Field", Role: models.RoleFieldAuthority, Active: true},
		{ID: fieldID2, Email: "field2@example.com", FullName: "Felix Field", Role: models.RoleFieldAuthority, Active: true},
		{ID: directorID, Email: "dg@example.com", FullName: "Dana Director", Role: models.RoleGeneralDirectorate, Active: true},
		{ID: ministerID, Email: "minister@example.com", FullName: "Mina Minister", Role: models.RoleMinister, Active: true},
		{ID: reviewerAID, Email: "ra@example.com", FullName: "Rae Reviewer", Role: models.RoleAdvisoryBoardMember, Active: true},
		{ID: reviewerBID, Email: "rb@example.com", FullName: "Rob Reviewer", Role: models.RoleAdvisoryBoardMember, Active: true},
		{ID: inactiveRvID, Email: "rc@example.com", FullName: "Ria Retired", Role: models.RoleAdvisoryBoardMember, Active: false},
		{ID: adminID, Email: "admin@example.com", FullName: "Ada Admin", Role: models.RoleAdministrator, Active: true},
	} {
		s.users[u.ID] = u
	}
	return s
}

// seed inserts a request directly in the given status.
func (s *memStore) seed(status models.DemandeStatus) *models.Demande {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	d := &models.Demande{
		ID:          uuid.NewString(),
		Reference:   fmt.Sprintf("AUT-20261018-%06d", s.seq),
		Type:        models.DemandeTypeProduction,
		Status:      status,
		Payload:     []byte(productionPayload),
		RequesterID: requesterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.demandes[d.ID] = d
	cp := *d
	return &cp
}

func (s *memStore) status(id string) models.DemandeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demandes[id].Status
}

func (s *memStore) trail(id string) []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.audit[id]...)
}

// demande reads

func (s *memStore) GetByID(_ context.Context, id string) (*models.Demande, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demandes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) GetByReference(_ context.Context, reference string) (*models.Demande, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.demandes {
		if d.Reference == reference {
			cp := *d
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) Create(_ context.Context, prefix string, d *models.Demande) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	d.ID = uuid.NewString()
	d.Reference = workflow.FormatReference(prefix, d.CreatedAt, s.seq)
	d.UpdatedAt = d.CreatedAt
	cp := *d
	s.demandes[d.ID] = &cp
	return nil
}

func (s *memStore) List(_ context.Context, filter models.DemandeFilter) ([]models.Demande, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Demande, 0)
	for _, d := range s.demandes {
		if filter.RequesterID != "" && d.RequesterID != filter.RequesterID {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, len(out), nil
}

func (s *memStore) UpdatePayload(_ context.Context, id string, payload []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demandes[id]
	if !ok || (d.Status != models.StatusReturned && d.Status != models.StatusComplementRequested) {
		return repository.ErrStatusConflict
	}
	d.Payload = payload
	d.UpdatedAt = at
	return nil
}

func (s *memStore) CountByStatus(_ context.Context) ([]models.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.DemandeStatus]int)
	for _, d := range s.demandes {
		counts[d.Status]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, models.StatusCount{Status: status, Count: n})
	}
	return out, nil
}

// transition commit

func (s *memStore) Commit(_ context.Context, rec repository.TransitionRecord) (*repository.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demandes[rec.DemandeID]
	if !ok || d.Status != rec.From {
		return nil, repository.ErrStatusConflict
	}
	if rec.Archive != nil {
		if _, exists := s.archives[rec.DemandeID]; exists {
			return nil, repository.ErrArchiveExists
		}
	}

	entry := rec.Audit
	entry.ID = uuid.NewString()
	entry.DemandeID = rec.DemandeID
	entry.FromStatus = rec.From
	entry.ToStatus = rec.To
	entry.CreatedAt = rec.At
	entry.Sequence = len(s.audit[rec.DemandeID]) + 1
	result := &repository.CommitResult{Audit: entry}

	if rec.Board != nil {
		board := *rec.Board
		board.ID = uuid.NewString()
		board.Round = 1
		for _, b := range s.boards {
			if b.DemandeID == rec.DemandeID && b.Round >= board.Round {
				board.Round = b.Round + 1
			}
		}
		s.boards = append(s.boards, &board)
		for _, reviewerID := range rec.ReviewerIDs {
			op := &models.AdvisoryOpinion{
				ID:         uuid.NewString(),
				DemandeID:  rec.DemandeID,
				BoardID:    board.ID,
				ReviewerID: reviewerID,
				Opinion:    models.OpinionPending,
				CreatedAt:  rec.At,
				UpdatedAt:  rec.At,
			}
			s.opinions = append(s.opinions, op)
			result.Opinions = append(result.Opinions, *op)
		}
	}
	if rec.ConcludeBoardID != "" {
		for _, b := range s.boards {
			if b.ID == rec.ConcludeBoardID {
				if b.ConcludedAt != nil {
					return nil, repository.ErrStatusConflict
				}
				outcome := rec.Outcome
				at := rec.At
				b.Outcome = &outcome
				b.ConcludedAt = &at
			}
		}
	}
	if rec.Archive != nil {
		archive := *rec.Archive
		archive.ID = uuid.NewString()
		s.archives[rec.DemandeID] = &archive
		rec.Archive.ID = archive.ID
	}

	d.Status = rec.To
	d.UpdatedAt = rec.At
	if rec.AssigneeID != nil {
		assignee := *rec.AssigneeID
		d.AssigneeID = &assignee
	}
	if len(rec.FinalDocument) > 0 {
		signedBy := rec.SignedBy
		at := rec.At
		d.FinalDocument = rec.FinalDocument
		d.SignedBy = &signedBy
		d.SignedAt = &at
	}
	s.audit[rec.DemandeID] = append(s.audit[rec.DemandeID], entry)
	return result, nil
}

func (s *memStore) ListByDemande(_ context.Context, demandeID string) ([]models.AuditEntry, error) {
	return s.trail(demandeID), nil
}

// archive reads

func (s *memStore) GetByDemande(_ context.Context, demandeID string) (*models.ArchiveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.archives[demandeID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) archiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.archives)
}

// users

func (s *memStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (s *memStore) FindByIDs(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) ListActiveIDsByRole(_ context.Context, role models.UserRole) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	for _, u := range s.users {
		if u.Active && u.Role == role {
			out = append(out, u.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// advisory

func (s *memStore) OpenBoard(_ context.Context, demandeID string) (*models.AdvisoryBoard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.boards) - 1; i >= 0; i-- {
		b := s.boards[i]
		if b.DemandeID == demandeID && b.ConcludedAt == nil {
			cp := *b
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) ListBoards(_ context.Context, demandeID string) ([]models.AdvisoryBoard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AdvisoryBoard, 0)
	for _, b := range s.boards {
		if b.DemandeID == demandeID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *memStore) ListOpinions(_ context.Context, boardID string) ([]models.AdvisoryOpinion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AdvisoryOpinion, 0)
	for _, op := range s.opinions {
		if op.BoardID == boardID {
			out = append(out, *op)
		}
	}
	return out, nil
}

func (s *memStore) FindOpinion(_ context.Context, boardID, reviewerID string) (*models.AdvisoryOpinion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.opinions {
		if op.BoardID == boardID && op.ReviewerID == reviewerID {
			cp := *op
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) RecordOpinion(_ context.Context, opinionID string, value models.OpinionValue, observations string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.opinions {
		if op.ID == opinionID {
			if op.Opinion != models.OpinionPending {
				return repository.ErrStatusConflict
			}
			op.Opinion = value
			op.Observations = observations
			op.UpdatedAt = at
			return nil
		}
	}
	return repository.ErrStatusConflict
}

// stubRenderer stands in for DocumentService.RenderFinal.
type stubRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *stubRenderer) RenderFinal(_ context.Context, d *models.Demande, _ models.Actor, _ *models.SignatureUpload, _ time.Time) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3 " + d.Reference), nil
}

// eventRecorder collects post-commit events.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.TransitionEvent
}

func (r *eventRecorder) OnTransition(_ context.Context, e models.TransitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestEngine(store *memStore, renderer *stubRenderer, listeners ...TransitionListener) *WorkflowService {
	return NewWorkflowService(WorkflowServiceParams{
		Demandes:  store,
		Commits:   store,
		Archives:  store,
		Users:     store,
		Documents: renderer,
		Listeners: listeners,
	})
}
