package repo

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/identra/server/internal/model"
)

// In-memory repository implementations. They back unit tests and local runs
// without Postgres; the Querier arguments are ignored since there are no
// transactions.

// MemUserRepo is an in-memory UserRepo.
type MemUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

// NewMemUserRepo creates an empty in-memory user repo.
func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{users: make(map[uuid.UUID]model.User)}
}

func (r *MemUserRepo) Create(ctx context.Context, _ Querier, user *model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := *user
	created.ID = uuid.New()
	created.IsActive = true
	created.CreatedAt = now
	created.UpdatedAt = now
	r.users[created.ID] = created
	return created, nil
}

func (r *MemUserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return model.User{}, ErrNoRows
	}
	return user, nil
}

func (r *MemUserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.find(func(u model.User) bool { return u.Email != nil && strings.EqualFold(*u.Email, email) })
}

func (r *MemUserRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.find(func(u model.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (r *MemUserRepo) find(match func(model.User) bool) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.DeletedAt == nil && match(user) {
			return user, nil
		}
	}
	return model.User{}, ErrNoRows
}

func (r *MemUserRepo) UpdateProfilePicture(ctx context.Context, id uuid.UUID, picture string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return ErrNoRows
	}
	user.ProfilePicture = &picture
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

func (r *MemUserRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return ErrNoRows
	}
	now := time.Now().UTC()
	user.DeletedAt = &now
	r.users[id] = user
	return nil
}

// MemVerificationRepo is an in-memory VerificationRepo with the same upsert
// semantics as the Postgres one: one challenge per identifier, overwritten
// on re-issue.
type MemVerificationRepo struct {
	mu      sync.Mutex
	byEmail map[string]*model.Verification
	byPhone map[string]*model.Verification
}

// NewMemVerificationRepo creates an empty in-memory verification repo.
func NewMemVerificationRepo() *MemVerificationRepo {
	return &MemVerificationRepo{
		byEmail: make(map[string]*model.Verification),
		byPhone: make(map[string]*model.Verification),
	}
}

func (r *MemVerificationRepo) UpsertByEmail(ctx context.Context, email, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error) {
	return r.upsert(r.byEmail, email, &email, nil, otpHashHex, otpExpiry)
}

func (r *MemVerificationRepo) UpsertByPhone(ctx context.Context, phone, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error) {
	return r.upsert(r.byPhone, phone, nil, &phone, otpHashHex, otpExpiry)
}

func (r *MemVerificationRepo) upsert(index map[string]*model.Verification, key string, email, phone *string, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := index[key]
	if !ok {
		v = &model.Verification{ID: uuid.New(), Email: email, Phone: phone}
		index[key] = v
	}
	v.OTPHash = decodeHexOrNil(otpHashHex)
	v.OTPExpiry = otpExpiry
	v.IsVerified = false
	v.ExchangeToken = nil
	v.ExchangeTokenExpiry = nil
	return v.ID, nil
}

func (r *MemVerificationRepo) GetByEmail(ctx context.Context, email string) (model.Verification, error) {
	return r.get(r.byEmail, email)
}

func (r *MemVerificationRepo) GetByPhone(ctx context.Context, phone string) (model.Verification, error) {
	return r.get(r.byPhone, phone)
}

func (r *MemVerificationRepo) get(index map[string]*model.Verification, key string) (model.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := index[key]
	if !ok {
		return model.Verification{}, ErrNoRows
	}
	return *v, nil
}

func (r *MemVerificationRepo) MarkVerified(ctx context.Context, id uuid.UUID, token string, tokenExpiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.byID(id)
	if v == nil {
		return ErrNoRows
	}
	v.IsVerified = true
	v.ExchangeToken = &token
	v.ExchangeTokenExpiry = &tokenExpiry
	return nil
}

func (r *MemVerificationRepo) ClearExchangeToken(ctx context.Context, _ Querier, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.byID(id)
	if v == nil {
		return ErrNoRows
	}
	v.ExchangeToken = nil
	v.ExchangeTokenExpiry = nil
	return nil
}

func (r *MemVerificationRepo) byID(id uuid.UUID) *model.Verification {
	for _, v := range r.byEmail {
		if v.ID == id {
			return v
		}
	}
	for _, v := range r.byPhone {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// MemSessionRepo is an in-memory SessionRepo. Insertion order breaks
// start_time ties, mirroring the id tie-break in SQL.
type MemSessionRepo struct {
	mu       sync.Mutex
	sessions []model.Session
	order    map[uuid.UUID]int
	seq      int
}

// NewMemSessionRepo creates an empty in-memory session repo.
func NewMemSessionRepo() *MemSessionRepo {
	return &MemSessionRepo{order: make(map[uuid.UUID]int)}
}

func (r *MemSessionRepo) Create(ctx context.Context, _ Querier, userID uuid.UUID, startTime, endTime time.Time, method model.LoginMethod, meta model.DeviceMetadata) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := model.Session{
		ID:            uuid.New(),
		UserID:        userID,
		StartTime:     startTime,
		EndTime:       endTime,
		LoginMethod:   method,
		RemoteAddress: meta.RemoteAddress,
		BrowserInfo:   meta.BrowserInfo,
		IPAddress:     meta.IPAddress,
		OSInfo:        meta.OSInfo,
		Timezone:      meta.Timezone,
		Location:      meta.Location,
		DeviceID:      meta.DeviceID,
	}
	r.seq++
	r.order[session.ID] = r.seq
	r.sessions = append(r.sessions, session)
	return session, nil
}

func (r *MemSessionRepo) LatestByUser(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	sessions := r.sortedByUser(userID)
	if len(sessions) == 0 {
		return model.Session{}, ErrNoRows
	}
	return sessions[0], nil
}

func (r *MemSessionRepo) SetEndTime(ctx context.Context, id uuid.UUID, endTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sessions {
		if r.sessions[i].ID == id {
			r.sessions[i].EndTime = endTime
			return nil
		}
	}
	return ErrNoRows
}

func (r *MemSessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Session, error) {
	sessions := r.sortedByUser(userID)
	if offset >= len(sessions) {
		return []model.Session{}, nil
	}
	sessions = sessions[offset:]
	if limit < len(sessions) {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (r *MemSessionRepo) DistinctDeviceCount(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make(map[string]struct{})
	for _, s := range r.sessions {
		if s.UserID == userID && s.DeviceID != nil {
			devices[*s.DeviceID] = struct{}{}
		}
	}
	return len(devices), nil
}

func (r *MemSessionRepo) FirstLogin(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first *time.Time
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		start := s.StartTime
		if first == nil || start.Before(*first) {
			first = &start
		}
	}
	return first, nil
}

func (r *MemSessionRepo) sortedByUser(userID uuid.UUID) []model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []model.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].StartTime.After(sessions[j].StartTime)
		}
		return r.order[sessions[i].ID] > r.order[sessions[j].ID]
	})
	return sessions
}

func decodeHexOrNil(hexStr string) []byte {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil
	}
	return b
}
