package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/repository"
	"github.com/noah-isme/assignx-api/pkg/storage"
)

// memoryProjectStore mimics the check-and-set semantics of ProjectRepository.
type memoryProjectStore struct {
	mu        sync.Mutex
	projects  map[string]*models.Project
	events    []models.ProjectEvent
	reviews   []models.QCReview
	payouts   map[string]map[models.PayoutKind]models.SettlementPayout
	overrides []models.SettlementOverride
	barred    map[[2]string]bool
	applies   []repository.TransitionParams
	seq       int

	// beforeApply runs outside the lock before each ApplyTransition.
	beforeApply func()
	applyErr    error
}

func newMemoryProjectStore(projects ...*models.Project) *memoryProjectStore {
	store := &memoryProjectStore{
		projects: make(map[string]*models.Project),
		payouts:  make(map[string]map[models.PayoutKind]models.SettlementPayout),
		barred:   make(map[[2]string]bool),
	}
	for _, p := range projects {
		clone := *p
		store.projects[p.ID] = &clone
	}
	return store
}

func (s *memoryProjectStore) Create(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if project.ID == "" {
		project.ID = fmt.Sprintf("project-%d", s.seq)
	}
	project.ProjectNumber = fmt.Sprintf("AX-%05d", s.seq)
	project.Version = 1
	clone := *project
	s.projects[project.ID] = &clone
	return nil
}

func (s *memoryProjectStore) GetByID(_ context.Context, id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (s *memoryProjectStore) List(_ context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Project
	for _, p := range s.projects {
		if len(filter.Status) > 0 && !lo.Contains(filter.Status, p.Status) {
			continue
		}
		if filter.ClientID != "" && p.ClientID != filter.ClientID {
			continue
		}
		if filter.DoerID != "" && lo.FromPtr(p.DoerID) != filter.DoerID && lo.FromPtr(p.ProposedDoerID) != filter.DoerID {
			continue
		}
		if filter.SupervisorID != "" && lo.FromPtr(p.SupervisorID) != filter.SupervisorID &&
			!(filter.Unclaimed && p.SupervisorID == nil && p.Status == models.ProjectStatusSubmitted) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryProjectStore) History(_ context.Context, projectID string) ([]models.ProjectEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.events, func(e models.ProjectEvent, _ int) bool { return e.ProjectID == projectID }), nil
}

func (s *memoryProjectStore) QCReviews(_ context.Context, projectID string) ([]models.QCReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.reviews, func(r models.QCReview, _ int) bool { return r.ProjectID == projectID }), nil
}

func (s *memoryProjectStore) Payouts(_ context.Context, projectID string) ([]models.SettlementPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payouts := lo.Values(s.payouts[projectID])
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].Kind < payouts[j].Kind })
	return payouts, nil
}

func (s *memoryProjectStore) ListDueForAutoApproval(_ context.Context, now time.Time, limit int) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Project
	for _, p := range s.projects {
		if p.Status == models.ProjectStatusDelivered && p.AutoApproveAt != nil && !p.AutoApproveAt.After(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AutoApproveAt.Before(*out[j].AutoApproveAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryProjectStore) Exists(_ context.Context, supervisorID, doerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.barred[[2]string{supervisorID, doerID}], nil
}

func (s *memoryProjectStore) bar(supervisorID, doerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.barred[[2]string{supervisorID, doerID}] = true
}

func (s *memoryProjectStore) ApplyTransition(_ context.Context, params repository.TransitionParams) (*models.Project, error) {
	if s.beforeApply != nil {
		s.beforeApply()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies = append(s.applies, params)
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	if err := params.CheckColumns(); err != nil {
		return nil, err
	}

	current, ok := s.projects[params.ProjectID]
	if !ok || current.Status != params.Expected || !s.actorMatches(current, params) {
		return nil, sql.ErrNoRows
	}
	if params.ExcludeBlacklisted != nil && current.SupervisorID != nil &&
		s.barred[[2]string{*current.SupervisorID, *params.ExcludeBlacklisted}] {
		return nil, sql.ErrNoRows
	}
	if params.DueBy != nil && (current.AutoApproveAt == nil || current.AutoApproveAt.After(*params.DueBy)) {
		return nil, sql.ErrNoRows
	}

	updated := *current
	for column, value := range params.Set {
		if err := assignColumn(&updated, column, value); err != nil {
			return nil, err
		}
	}
	for _, column := range lo.Uniq(params.Increment) {
		if err := incrementColumn(&updated, column); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	updated.Status = params.Target
	updated.Version++
	updated.UpdatedAt = now

	hops := params.Hops
	if len(hops) == 0 {
		hops = [][2]models.ProjectStatus{{params.Expected, params.Target}}
	}
	for _, hop := range hops {
		s.events = append(s.events, models.ProjectEvent{
			ID:         fmt.Sprintf("event-%d", len(s.events)+1),
			ProjectID:  params.ProjectID,
			FromStatus: hop[0],
			ToStatus:   hop[1],
			Action:     params.Action,
			ActorID:    params.ActorID,
			ActorRole:  params.ActorRole,
			Reason:     params.Reason,
			Payload:    params.Payload,
			CreatedAt:  now,
		})
	}
	if params.QCReview != nil {
		review := *params.QCReview
		review.ID = fmt.Sprintf("review-%d", len(s.reviews)+1)
		review.ProjectID = params.ProjectID
		review.CreatedAt = now
		s.reviews = append(s.reviews, review)
	}
	for _, payout := range params.Payouts {
		if s.payouts[params.ProjectID] == nil {
			s.payouts[params.ProjectID] = make(map[models.PayoutKind]models.SettlementPayout)
		}
		if _, exists := s.payouts[params.ProjectID][payout.Kind]; exists {
			continue
		}
		payout.ProjectID = params.ProjectID
		payout.CreatedAt = now
		s.payouts[params.ProjectID][payout.Kind] = payout
	}
	if params.Override != nil {
		s.overrides = append(s.overrides, *params.Override)
	}

	s.projects[params.ProjectID] = &updated
	clone := updated
	return &clone, nil
}

func (s *memoryProjectStore) actorMatches(p *models.Project, params repository.TransitionParams) bool {
	switch params.ActorColumn {
	case repository.ActorAny:
		return true
	case repository.ActorClaimSupervisor:
		return p.SupervisorID == nil || *p.SupervisorID == params.ActorID
	case repository.ActorClient:
		return p.ClientID == params.ActorID
	case repository.ActorSupervisor:
		return lo.FromPtr(p.SupervisorID) == params.ActorID
	case repository.ActorDoer:
		return lo.FromPtr(p.DoerID) == params.ActorID
	case repository.ActorProposedDoer:
		return lo.FromPtr(p.ProposedDoerID) == params.ActorID
	}
	return false
}

func (s *memoryProjectStore) put(p *models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.projects[p.ID] = &clone
}

func (s *memoryProjectStore) project(id string) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.projects[id]
}

var projectFieldsByColumn = func() map[string]int {
	fields := make(map[string]int)
	t := reflect.TypeOf(models.Project{})
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("db"); tag != "" {
			fields[tag] = i
		}
	}
	return fields
}()

// assignColumn writes value into the field tagged with column, converting
// between T and *T the way the database driver would.
func assignColumn(p *models.Project, column string, value interface{}) error {
	idx, ok := projectFieldsByColumn[column]
	if !ok {
		return fmt.Errorf("unknown column %s", column)
	}
	field := reflect.ValueOf(p).Elem().Field(idx)
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(field.Type()):
		field.Set(v)
	case v.Kind() == reflect.Ptr && v.IsNil():
		field.Set(reflect.Zero(field.Type()))
	case v.Kind() == reflect.Ptr && v.Elem().Type().ConvertibleTo(field.Type()):
		field.Set(v.Elem().Convert(field.Type()))
	case field.Kind() == reflect.Ptr && v.Type().ConvertibleTo(field.Type().Elem()):
		ptr := reflect.New(field.Type().Elem())
		ptr.Elem().Set(v.Convert(field.Type().Elem()))
		field.Set(ptr)
	case v.Type().ConvertibleTo(field.Type()):
		field.Set(v.Convert(field.Type()))
	default:
		return fmt.Errorf("cannot assign %T to column %s", value, column)
	}
	return nil
}

func incrementColumn(p *models.Project, column string) error {
	idx, ok := projectFieldsByColumn[column]
	if !ok {
		return fmt.Errorf("unknown column %s", column)
	}
	field := reflect.ValueOf(p).Elem().Field(idx)
	if field.Kind() != reflect.Int {
		return fmt.Errorf("column %s is not a counter", column)
	}
	field.SetInt(field.Int() + 1)
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	notices []models.StatusNotification
}

func (p *recordingPublisher) Publish(_ context.Context, notices []models.StatusNotification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, notices...)
}

func (p *recordingPublisher) all() []models.StatusNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.StatusNotification(nil), p.notices...)
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return lo.Map(a.logs, func(l models.AuditLog, _ int) string { return l.Action })
}

type stubUsers map[string]*models.User

func (u stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryDeliverableStore struct {
	mu    sync.Mutex
	items []models.Deliverable
}

func (s *memoryDeliverableStore) Create(_ context.Context, d *models.Deliverable) (*models.Deliverable, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ProjectID == d.ProjectID && s.items[i].IdempotencyKey == d.IdempotencyKey {
			existing := s.items[i]
			return &existing, false, nil
		}
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("deliverable-%d", len(s.items)+1)
	}
	d.CreatedAt = time.Now().UTC()
	s.items = append(s.items, *d)
	return d, true, nil
}

func (s *memoryDeliverableStore) GetByID(_ context.Context, id string) (*models.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			d := s.items[i]
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memoryDeliverableStore) GetByKey(_ context.Context, projectID, key string) (*models.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ProjectID == projectID && s.items[i].IdempotencyKey == key {
			d := s.items[i]
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memoryDeliverableStore) ListByProject(_ context.Context, projectID string) ([]models.Deliverable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.items, func(d models.Deliverable, _ int) bool { return d.ProjectID == projectID }), nil
}

func (s *memoryDeliverableStore) CountForRound(_ context.Context, projectID string, round int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.CountBy(s.items, func(d models.Deliverable) bool { return d.ProjectID == projectID && d.Round == round }), nil
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.objects)
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type recordingFlags struct {
	mu    sync.Mutex
	flags []models.PaymentFlag
}

func (f *recordingFlags) Create(_ context.Context, flag *models.PaymentFlag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, *flag)
	return nil
}
