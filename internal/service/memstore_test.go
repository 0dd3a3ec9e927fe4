package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/repository"
)

// memDB is an in-memory stand-in for Postgres that enforces the same unique keys.
type memDB struct {
	mu            sync.Mutex
	identities    map[string]*models.Identity
	tokens        map[string]*models.RefreshToken
	roles         map[string]models.RoleSet
	students      map[string]*models.Student
	fees          map[string]*models.FeeRecord
	notifications map[string]*models.SmsNotification
	profiles      map[string]*models.Profile
	audits        []models.AuditLog

	statsCalls int
	purgeErr   error
	rolesErr   error
}

func newMemDB() *memDB {
	return &memDB{
		identities:    map[string]*models.Identity{},
		tokens:        map[string]*models.RefreshToken{},
		roles:         map[string]models.RoleSet{},
		students:      map[string]*models.Student{},
		fees:          map[string]*models.FeeRecord{},
		notifications: map[string]*models.SmsNotification{},
		profiles:      map[string]*models.Profile{},
	}
}

type (
	memIdentities    struct{ *memDB }
	memRoles         struct{ *memDB }
	memStudents      struct{ *memDB }
	memFees          struct{ *memDB }
	memNotifications struct{ *memDB }
	memProfiles      struct{ *memDB }
	memAccounts      struct{ *memDB }
	memAudit         struct{ *memDB }
)

func (db *memDB) insertIdentityLocked(identity *models.Identity) error {
	for _, existing := range db.identities {
		if identity.Username != nil && existing.Username != nil && *identity.Username == *existing.Username {
			return fmt.Errorf("create identity: %w", repository.ErrDuplicate)
		}
		if identity.Phone != nil && existing.Phone != nil && *identity.Phone == *existing.Phone {
			return fmt.Errorf("create identity: %w", repository.ErrDuplicate)
		}
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	identity.CreatedAt = time.Now().UTC()
	clone := *identity
	db.identities[identity.ID] = &clone
	return nil
}

func (db *memDB) insertStudentLocked(student *models.Student) error {
	for _, existing := range db.students {
		if existing.UserID == student.UserID {
			return fmt.Errorf("create student: %w", repository.ErrDuplicate)
		}
	}
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.JoinedDate.IsZero() {
		student.JoinedDate = time.Now().UTC()
	}
	clone := *student
	db.students[student.ID] = &clone
	return nil
}

func (db *memDB) studentByUserLocked(userID string) *models.Student {
	for _, s := range db.students {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

func (r memIdentities) Create(_ context.Context, identity *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertIdentityLocked(identity)
}

func (r memIdentities) FindByID(_ context.Context, id string) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity, ok := r.identities[id]; ok {
		clone := *identity
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r memIdentities) find(match func(*models.Identity) bool) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, identity := range r.identities {
		if match(identity) {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memIdentities) FindByUsername(_ context.Context, username string) (*models.Identity, error) {
	return r.find(func(i *models.Identity) bool { return models.StringValue(i.Username) == username })
}

func (r memIdentities) FindByPhone(_ context.Context, phone string) (*models.Identity, error) {
	return r.find(func(i *models.Identity) bool { return models.StringValue(i.Phone) == phone })
}

func (r memIdentities) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.identities[id]
	return ok, nil
}

func (r memIdentities) UpdateLastSignIn(_ context.Context, id string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity, ok := r.identities[id]; ok {
		identity.LastSignInAt = &ts
	}
	return nil
}

func (r memIdentities) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *token
	r.tokens[token.Token] = &clone
	return nil
}

func (r memIdentities) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.tokens[token]; ok {
		clone := *stored
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r memIdentities) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tokens {
		if stored.ID == id {
			stored.Revoked = true
			stored.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r memIdentities) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tokens {
		if stored.UserID == userID {
			stored.Revoked = true
		}
	}
	return nil
}

func (r memRoles) RolesFor(_ context.Context, userID string) (models.RoleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rolesErr != nil {
		return 0, r.rolesErr
	}
	return r.roles[userID], nil
}

func (r memRoles) Grant(_ context.Context, userID string, role models.Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[userID].Has(role) {
		return false, nil
	}
	r.roles[userID] = r.roles[userID].With(role)
	return true, nil
}

func (r memStudents) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Student, 0, len(r.students))
	for _, s := range r.students {
		if filter.Active != nil && s.IsActive != *filter.Active {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (r memStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.students[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r memStudents) FindByUserID(_ context.Context, userID string) (*models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.studentByUserLocked(userID); s != nil {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r memStudents) Update(_ context.Context, student *models.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *student
	r.students[student.ID] = &clone
	return nil
}

func (r memStudents) MarkLeft(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.studentByUserLocked(userID)
	if s == nil {
		return 0, nil
	}
	if s.LeftDate == nil {
		s.Deactivate(at)
	}
	s.IsActive = false
	return 1, nil
}

func (r memStudents) Stats(_ context.Context) (*models.StudentStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsCalls++
	stats := &models.StudentStats{}
	for _, s := range r.students {
		stats.TotalStudents++
		if s.IsActive {
			stats.ActiveStudents++
			stats.MonthlyRevenue += s.MonthlyFees
		}
	}
	return stats, nil
}

func (r memFees) Insert(_ context.Context, record *models.FeeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.fees {
		if existing.StudentID == record.StudentID && existing.Month == record.Month && existing.Year == record.Year {
			return fmt.Errorf("create fee record: %w", repository.ErrDuplicate)
		}
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	clone := *record
	r.fees[record.ID] = &clone
	return nil
}

func (r memFees) FindByPeriod(_ context.Context, studentID string, period models.Period) (*models.FeeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.fees {
		if existing.StudentID == studentID && existing.Month == period.Month && existing.Year == period.Year {
			clone := *existing
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memFees) MarkPaid(_ context.Context, id string, amount float64, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.fees[id]
	if !ok || record.Paid {
		return false, nil
	}
	record.Paid = true
	record.Amount = amount
	record.PaidDate = &paidAt
	return true, nil
}

func (r memFees) ListByStudent(_ context.Context, studentID string) ([]models.FeeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeeRecord
	for _, record := range r.fees {
		if record.StudentID == studentID {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (r memFees) Report(_ context.Context, period models.Period) ([]models.FeeReportRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []models.FeeReportRow
	for _, s := range r.students {
		if !s.IsActive {
			continue
		}
		row := models.FeeReportRow{StudentID: s.ID, FullName: s.FullName, ClassLevel: s.ClassLevel, MonthlyFees: s.MonthlyFees}
		for _, record := range r.fees {
			if record.StudentID == s.ID && record.Month == period.Month && record.Year == period.Year {
				amount := record.Amount
				row.Paid = record.Paid
				row.Amount = &amount
				row.PaidDate = record.PaidDate
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].FullName < rows[j].FullName })
	return rows, nil
}

func (r memNotifications) Create(_ context.Context, n *models.SmsNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Status = models.NotificationQueued
	n.CreatedAt = time.Now().UTC()
	clone := *n
	r.notifications[n.ID] = &clone
	return nil
}

func (r memNotifications) FindByID(_ context.Context, id string) (*models.SmsNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		clone := *n
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r memNotifications) ListByStudent(_ context.Context, studentID string) ([]models.SmsNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SmsNotification
	for _, n := range r.notifications {
		if n.StudentID == studentID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r memNotifications) ResolveQueuedForStudent(_ context.Context, studentID string, status models.NotificationStatus, sentAt *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.notifications {
		if item.StudentID == studentID && item.Status == models.NotificationQueued {
			item.Status = status
			item.SentAt = sentAt
			n++
		}
	}
	return n, nil
}

func (r memNotifications) Resolve(_ context.Context, id string, status models.NotificationStatus, sentAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.notifications[id]
	if !ok || item.Status != models.NotificationQueued {
		return false, nil
	}
	item.Status = status
	item.SentAt = sentAt
	return true, nil
}

func (r memNotifications) status(id string) models.NotificationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.notifications[id]; ok {
		return item.Status
	}
	return ""
}

func (r memProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r memProfiles) Update(_ context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *p
	r.profiles[p.ID] = &clone
	return nil
}

func (r memProfiles) SetPhoto(_ context.Context, id, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.ProfilePhotoURL = &path
	return nil
}

func (r memAccounts) Register(_ context.Context, reg repository.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.Identity != nil {
		if err := r.insertIdentityLocked(reg.Identity); err != nil {
			return err
		}
		reg.Student.UserID = reg.Identity.ID
		reg.Profile.ID = reg.Identity.ID
	}
	if err := r.insertStudentLocked(reg.Student); err != nil {
		if reg.Identity != nil {
			delete(r.identities, reg.Identity.ID)
		}
		return err
	}
	r.roles[reg.Student.UserID] = r.roles[reg.Student.UserID].With(models.RoleStudent)
	profile := *reg.Profile
	r.profiles[profile.ID] = &profile
	return nil
}

func (r memAccounts) Purge(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.purgeErr != nil {
		return false, r.purgeErr
	}
	delete(r.profiles, userID)
	if s := r.studentByUserLocked(userID); s != nil {
		for id, record := range r.fees {
			if record.StudentID == s.ID {
				delete(r.fees, id)
			}
		}
	}
	delete(r.roles, userID)
	for key, token := range r.tokens {
		if token.UserID == userID {
			delete(r.tokens, key)
		}
	}
	_, existed := r.identities[userID]
	delete(r.identities, userID)
	return existed, nil
}

func (r memAudit) Create(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, *log)
	return nil
}

func (db *memDB) auditActions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	actions := make([]string, 0, len(db.audits))
	for _, a := range db.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

func (db *memDB) addStudent(s models.Student) *models.Student {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.UserID == "" {
		identity := &models.Identity{}
		if err := db.insertIdentityLocked(identity); err != nil {
			panic(errors.New("seed identity: " + err.Error()))
		}
		s.UserID = identity.ID
	}
	if err := db.insertStudentLocked(&s); err != nil {
		panic(errors.New("seed student: " + err.Error()))
	}
	return &s
}
