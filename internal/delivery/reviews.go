package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/typepilot/internal/session"
)

const defaultReviewTTL = 15 * time.Minute

// Resolution is how a review left the gate.
type Resolution string

const (
	ResolutionConfirmed Resolution = "confirmed"
	ResolutionRejected  Resolution = "rejected"
	ResolutionExpired   Resolution = "expired"
)

// Review is generated text waiting for human confirmation.
type Review struct {
	ID        string               `json:"id"`
	Target    string               `json:"target"`
	Text      string               `json:"text"`
	Humanized bool                 `json:"humanized"`
	Profile   session.SpeedProfile `json:"profile"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

type pendingReview struct {
	review  Review
	claimed bool
}

// Reviews holds pending reviews. Safe for concurrent use.
type Reviews struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingReview
}

// NewReviews creates an empty store. A zero ttl uses 15 minutes.
func NewReviews(ttl time.Duration) *Reviews {
	if ttl <= 0 {
		ttl = defaultReviewTTL
	}
	return &Reviews{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]*pendingReview),
	}
}

// Add stores a new review and returns it with ID and timestamps set.
func (r *Reviews) Add(target, text string, humanized bool, profile session.SpeedProfile) Review {
	now := r.now()
	rev := Review{
		ID:        uuid.NewString(),
		Target:    target,
		Text:      text,
		Humanized: humanized,
		Profile:   profile,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[rev.ID] = &pendingReview{review: rev}
	return rev
}

// Get returns a pending review.
func (r *Reviews) Get(id string) (Review, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok || r.expired(p.review) {
		return Review{}, false
	}
	return p.review, true
}

// List returns pending reviews for target, oldest first. An empty target
// lists every target.
func (r *Reviews) List(target string) []Review {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Review{}
	for _, p := range r.pending {
		if r.expired(p.review) || (target != "" && p.review.Target != target) {
			continue
		}
		out = append(out, p.review)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// claim marks a review as being delivered.
func (r *Reviews) claim(id string) (Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok || r.expired(p.review) {
		return Review{}, ErrReviewNotFound
	}
	if p.claimed {
		return Review{}, ErrReviewBusy
	}
	p.claimed = true
	return p.review, nil
}

// release returns a claimed review to the pending set.
func (r *Reviews) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[id]; ok {
		p.claimed = false
	}
}

// remove deletes a review and reports whether it was present.
func (r *Reviews) remove(id string) (Review, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return Review{}, false
	}
	delete(r.pending, id)
	return p.review, true
}

// Expire removes unclaimed reviews past their TTL and returns them.
func (r *Reviews) Expire() []Review {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Review
	for id, p := range r.pending {
		if !p.claimed && r.expired(p.review) {
			out = append(out, p.review)
			delete(r.pending, id)
		}
	}
	return out
}

func (r *Reviews) expired(rev Review) bool {
	return !r.now().Before(rev.ExpiresAt)
}

// RunExpiry expires reviews every interval until ctx is cancelled, passing
// each expired review to onExpired.
func (r *Reviews) RunExpiry(ctx context.Context, interval time.Duration, onExpired func(Review)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rev := range r.Expire() {
				onExpired(rev)
			}
		}
	}
}
