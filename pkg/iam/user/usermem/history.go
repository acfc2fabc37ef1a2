package usermem

import (
	"context"
	"sort"
	"sync"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// LoginHistory is an in-memory user.LoginHistoryRepository. Records with an
// id already stored are ignored, so redelivered jobs do not duplicate.
type LoginHistory struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	records []user.LoginRecord
}

func NewLoginHistory() *LoginHistory {
	return &LoginHistory{seen: make(map[string]struct{})}
}

var _ user.LoginHistoryRepository = (*LoginHistory)(nil)

func (h *LoginHistory) Record(ctx context.Context, record user.LoginRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.seen[record.ID]; ok {
		return nil
	}
	h.seen[record.ID] = struct{}{}
	h.records = append(h.records, record)
	return nil
}

func (h *LoginHistory) ListByUser(ctx context.Context, userID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[user.LoginRecord], error) {
	opts = opts.Normalize()

	h.mu.Lock()
	var mine []user.LoginRecord
	for _, r := range h.records {
		if r.UserID == userID {
			mine = append(mine, r)
		}
	}
	h.mu.Unlock()

	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})
	return kernel.NewPaginated(window(mine, opts), opts, len(mine)), nil
}
