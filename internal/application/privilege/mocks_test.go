package privilege

import (
	"context"
	"sync"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/careloop/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock implementations

type mockSubscriptionRepository struct {
	mock.Mock
}

func (m *mockSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

type mockDefinitionRepository struct {
	mock.Mock
}

func (m *mockDefinitionRepository) Save(ctx context.Context, def *privilege.Definition) error {
	args := m.Called(ctx, def)
	return args.Error(0)
}

func (m *mockDefinitionRepository) Update(ctx context.Context, def *privilege.Definition) error {
	args := m.Called(ctx, def)
	return args.Error(0)
}

func (m *mockDefinitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*privilege.Definition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*privilege.Definition), args.Error(1)
}

func (m *mockDefinitionRepository) FindByName(ctx context.Context, name string) (*privilege.Definition, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*privilege.Definition), args.Error(1)
}

func (m *mockDefinitionRepository) List(ctx context.Context, filter shared.Filter) ([]*privilege.Definition, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*privilege.Definition), args.Get(1).(int64), args.Error(2)
}

type mockGrantRepository struct {
	mock.Mock
}

func (m *mockGrantRepository) Save(ctx context.Context, grant *privilege.Grant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *mockGrantRepository) FindByID(ctx context.Context, id uuid.UUID) (*privilege.Grant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*privilege.Grant), args.Error(1)
}

func (m *mockGrantRepository) FindByPlan(ctx context.Context, planID string) ([]*privilege.Grant, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*privilege.Grant), args.Error(1)
}

func (m *mockGrantRepository) FindByPlanAndName(ctx context.Context, planID, privilegeName string) (*privilege.Grant, error) {
	args := m.Called(ctx, planID, privilegeName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*privilege.Grant), args.Error(1)
}

func (m *mockGrantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockLedgerRepository struct {
	mock.Mock
}

func (m *mockLedgerRepository) FindBySubscriptionAndGrant(ctx context.Context, subscriptionID, grantID uuid.UUID) (*privilege.LedgerEntry, error) {
	args := m.Called(ctx, subscriptionID, grantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*privilege.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepository) GetOrCreate(ctx context.Context, subscriptionID uuid.UUID, grant *privilege.Grant, now time.Time) (*privilege.LedgerEntry, error) {
	args := m.Called(ctx, subscriptionID, grant, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*privilege.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepository) AtomicIncrement(ctx context.Context, entryID uuid.UUID, amount int64, now time.Time) (bool, error) {
	args := m.Called(ctx, entryID, amount, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedgerRepository) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockUsageRecordRepository struct {
	mock.Mock
}

func (m *mockUsageRecordRepository) Append(ctx context.Context, record *privilege.UsageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockUsageRecordRepository) SumForBucket(ctx context.Context, ledgerEntryID uuid.UUID, kind privilege.BucketKind, key string) (int64, error) {
	args := m.Called(ctx, ledgerEntryID, kind, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUsageRecordRepository) FindByLedgerEntry(ctx context.Context, ledgerEntryID uuid.UUID, filter privilege.UsageRecordFilter) ([]*privilege.UsageRecord, int64, error) {
	args := m.Called(ctx, ledgerEntryID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*privilege.UsageRecord), args.Get(1).(int64), args.Error(2)
}

// memoryGrantCache is a map-backed GrantCache for resolver tests
type memoryGrantCache struct {
	mu      sync.Mutex
	grants  map[string]*privilege.Grant
	hits    int
	sets    int
	flushes int
}

func newMemoryGrantCache() *memoryGrantCache {
	return &memoryGrantCache{grants: make(map[string]*privilege.Grant)}
}

func (c *memoryGrantCache) Get(_ context.Context, planID, privilegeName string) (*privilege.Grant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	grant, ok := c.grants[planID+"/"+privilegeName]
	if ok {
		c.hits++
	}
	return grant, ok
}

func (c *memoryGrantCache) Set(_ context.Context, grant *privilege.Grant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants[grant.PlanID+"/"+grant.PrivilegeName] = grant
	c.sets++
}

func (c *memoryGrantCache) InvalidatePlan(_ context.Context, planID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.grants {
		if len(key) > len(planID) && key[:len(planID)+1] == planID+"/" {
			delete(c.grants, key)
		}
	}
	c.flushes++
}

// fakeLedgerRepository is an in-memory LedgerRepository whose
// AtomicIncrement performs a real mutex-guarded check-and-increment.
// Used to exercise the service under concurrent consumption.
type fakeLedgerRepository struct {
	mu      sync.Mutex
	entries map[string]*privilege.LedgerEntry
}

func newFakeLedgerRepository() *fakeLedgerRepository {
	return &fakeLedgerRepository{entries: make(map[string]*privilege.LedgerEntry)}
}

func ledgerKey(subscriptionID, grantID uuid.UUID) string {
	return subscriptionID.String() + "/" + grantID.String()
}

func (f *fakeLedgerRepository) FindBySubscriptionAndGrant(_ context.Context, subscriptionID, grantID uuid.UUID) (*privilege.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[ledgerKey(subscriptionID, grantID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (f *fakeLedgerRepository) GetOrCreate(_ context.Context, subscriptionID uuid.UUID, grant *privilege.Grant, now time.Time) (*privilege.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ledgerKey(subscriptionID, grant.ID)
	if entry, ok := f.entries[key]; ok {
		if entry.IsExpired(now) {
			entry.UsedValue = 0
			entry.PeriodStart = now
			entry.PeriodEnd = grant.PeriodEnd(now)
		}
		clone := *entry
		return &clone, nil
	}
	entry, err := privilege.NewLedgerEntry(subscriptionID, grant, now)
	if err != nil {
		return nil, err
	}
	f.entries[key] = entry
	clone := *entry
	return &clone, nil
}

func (f *fakeLedgerRepository) AtomicIncrement(_ context.Context, entryID uuid.UUID, amount int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID != entryID {
			continue
		}
		if entry.AllowedValueSnapshot != privilege.AllowedValueUnlimited &&
			entry.UsedValue+amount > entry.AllowedValueSnapshot {
			return false, nil
		}
		entry.UsedValue += amount
		usedAt := now
		entry.LastUsedAt = &usedAt
		return true, nil
	}
	return false, shared.ErrNotFound
}

func (f *fakeLedgerRepository) ResetExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, entry := range f.entries {
		if entry.IsExpired(now) {
			entry.UsedValue = 0
			entry.PeriodStart = now
			entry.PeriodEnd = now.AddDate(0, 1, 0)
			count++
		}
	}
	return count, nil
}

// Test data helpers

func activeSubscription(planID string) *subscription.Subscription {
	return &subscription.Subscription{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		MemberID:          uuid.New(),
		PlanID:            planID,
		Status:            subscription.StatusActive,
		StartsAt:          time.Now().AddDate(0, -1, 0),
	}
}

func grantFor(planID, name string, allowedValue int64) *privilege.Grant {
	def, err := privilege.NewDefinition(name, name)
	if err != nil {
		panic(err)
	}
	grant, err := privilege.NewGrant(planID, def, allowedValue)
	if err != nil {
		panic(err)
	}
	return grant
}
