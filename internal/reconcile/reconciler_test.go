package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/reconcile"
)

// memRepo applies the same conditional-transition semantics as the SQL
// store, so the idempotency properties hold identically.
type memRepo struct {
	mu    sync.Mutex
	logs  map[string]*domain.CommunicationLog
	stats map[string]*domain.CampaignStats
	done  map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		logs:  make(map[string]*domain.CommunicationLog),
		stats: make(map[string]*domain.CampaignStats),
		done:  make(map[string]bool),
	}
}

func (r *memRepo) addLog(id, campaignID string) {
	r.logs[id] = &domain.CommunicationLog{
		ID:         id,
		CampaignID: campaignID,
		Status:     domain.LogPending,
	}
	if _, ok := r.stats[campaignID]; !ok {
		r.stats[campaignID] = &domain.CampaignStats{}
	}
	r.stats[campaignID].TotalRecipients++
}

func (r *memRepo) TransitionFromPending(_ context.Context, logID string, receipt domain.DeliveryReceipt) (*domain.CommunicationLog, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[logID]
	if !ok {
		return nil, false, reconcile.ErrLogNotFound
	}
	if l.Status != domain.LogPending {
		cp := *l
		return &cp, false, nil
	}
	l.Status = receipt.Status
	l.Reason = receipt.Reason
	cp := *l
	return &cp, true, nil
}

func (r *memRepo) IncrementStat(_ context.Context, campaignID string, status domain.LogStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats[campaignID]
	switch status {
	case domain.LogSent:
		s.Sent++
	case domain.LogDelivered:
		s.Delivered++
	case domain.LogFailed:
		s.Failed++
	case domain.LogBounced:
		s.Bounced++
	}
	return nil
}

func (r *memRepo) MaybeComplete(_ context.Context, campaignID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats[campaignID]
	if s.Sent+s.Delivered+s.Failed+s.Bounced >= s.TotalRecipients {
		r.done[campaignID] = true
	}
	return nil
}

func receipt(logID string, status domain.LogStatus) domain.DeliveryReceipt {
	return domain.DeliveryReceipt{
		CommunicationLogID: logID,
		Status:             status,
		ReceivedAt:         time.Now(),
	}
}

func TestApplyTransitionsPendingLog(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")
	r := reconcile.New(repo)

	err := r.Apply(context.Background(), receipt("log-1", domain.LogDelivered))
	require.NoError(t, err)

	assert.Equal(t, domain.LogDelivered, repo.logs["log-1"].Status)
	assert.Equal(t, 1, repo.stats["camp-1"].Delivered)
}

func TestApplyDuplicateReceiptIsNoOp(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")
	r := reconcile.New(repo)

	require.NoError(t, r.Apply(context.Background(), receipt("log-1", domain.LogDelivered)))

	// Replay the same receipt several times; the counter must not move.
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Apply(context.Background(), receipt("log-1", domain.LogDelivered)))
	}
	assert.Equal(t, 1, repo.stats["camp-1"].Delivered)
	assert.Equal(t, domain.LogDelivered, repo.logs["log-1"].Status)
}

func TestApplyConflictingReceiptLosesToFirst(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")
	r := reconcile.New(repo)

	require.NoError(t, r.Apply(context.Background(), receipt("log-1", domain.LogDelivered)))
	require.NoError(t, r.Apply(context.Background(), receipt("log-1", domain.LogBounced)))

	assert.Equal(t, domain.LogDelivered, repo.logs["log-1"].Status)
	assert.Equal(t, 1, repo.stats["camp-1"].Delivered)
	assert.Equal(t, 0, repo.stats["camp-1"].Bounced)
}

func TestApplyUnknownLogDropped(t *testing.T) {
	repo := newMemRepo()
	r := reconcile.New(repo)

	err := r.Apply(context.Background(), receipt("ghost", domain.LogDelivered))
	assert.NoError(t, err)
}

func TestApplyNonTerminalStatusDropped(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")
	r := reconcile.New(repo)

	err := r.Apply(context.Background(), receipt("log-1", domain.LogPending))
	require.NoError(t, err)
	assert.Equal(t, domain.LogPending, repo.logs["log-1"].Status)
}

func TestApplyMarksCampaignCompleteWhenAllAccounted(t *testing.T) {
	repo := newMemRepo()
	repo.addLog("log-1", "camp-1")
	repo.addLog("log-2", "camp-1")
	r := reconcile.New(repo)

	require.NoError(t, r.Apply(context.Background(), receipt("log-1", domain.LogDelivered)))
	assert.False(t, repo.done["camp-1"])

	require.NoError(t, r.Apply(context.Background(), receipt("log-2", domain.LogFailed)))
	assert.True(t, repo.done["camp-1"])

	assert.Equal(t, 0.5, repo.stats["camp-1"].DeliveryRate())
}

func TestApplyCountsEachTerminalStatusOnce(t *testing.T) {
	repo := newMemRepo()
	r := reconcile.New(repo)

	statuses := []domain.LogStatus{domain.LogSent, domain.LogDelivered, domain.LogFailed, domain.LogBounced}
	for i, st := range statuses {
		id := string(rune('a' + i))
		repo.addLog(id, "camp-1")
		require.NoError(t, r.Apply(context.Background(), receipt(id, st)))
	}

	s := repo.stats["camp-1"]
	assert.Equal(t, 1, s.Sent)
	assert.Equal(t, 1, s.Delivered)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Bounced)
}
