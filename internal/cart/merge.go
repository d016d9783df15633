package cart

import (
	"context"
	"slices"

	"github.com/safar/storefront-core/internal/models"
)

// MaxMergeMarkers bounds how many merged guest entries an account remembers.
const MaxMergeMarkers = 200

// GuestCart is a cart collected before login. Token identifies the guest
// session; replaying a cart with the same token merges each entry once.
// Without a token every replay adds the quantities again.
type GuestCart struct {
	Token   string       `json:"token"`
	Entries []GuestEntry `json:"entries"`
}

type GuestEntry struct {
	ProductID string        `json:"productId"`
	Quantity  int           `json:"quantity"`
	Snapshot  *SnapshotHint `json:"-"`
}

type MergeOutcome string

const (
	MergeAdded   MergeOutcome = "added"
	MergeSkipped MergeOutcome = "already_merged"
	MergeFailed  MergeOutcome = "failed"
)

type MergeResult struct {
	ProductID string       `json:"productId"`
	Quantity  int          `json:"quantity"`
	Outcome   MergeOutcome `json:"outcome"`
	Err       error        `json:"-"`
}

// MergeReport is the per-entry outcome of a merge plus the resulting cart.
type MergeReport struct {
	Results []MergeResult `json:"results"`
	Cart    Cart          `json:"cart"`
}

func (r *MergeReport) Failed() []MergeResult {
	var failed []MergeResult
	for _, res := range r.Results {
		if res.Outcome == MergeFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

func mergeMarker(token, productID string) string {
	return token + ":" + productID
}

// MergeGuestCart replays each guest entry into the account cart. Entries are
// independent units of work: a failing entry is recorded in the report and
// the rest are still attempted. The returned error is non-nil only when the
// final cart cannot be read.
func (s *Service) MergeGuestCart(ctx context.Context, accountID string, guest GuestCart) (*MergeReport, error) {
	report := &MergeReport{Results: make([]MergeResult, 0, len(guest.Entries))}

	for _, entry := range guest.Entries {
		res := MergeResult{ProductID: entry.ProductID, Quantity: entry.Quantity}
		outcome, err := s.mergeEntry(ctx, accountID, guest.Token, entry)
		res.Outcome = outcome
		if err != nil {
			res.Outcome = MergeFailed
			res.Err = err
			s.logger.WarnContext(ctx, "guest cart entry not merged",
				"account_id", accountID, "product_id", entry.ProductID, "error", err)
		}
		report.Results = append(report.Results, res)
	}

	cart, err := s.Get(ctx, accountID)
	if err != nil {
		return report, err
	}
	report.Cart = cart
	return report, nil
}

func (s *Service) mergeEntry(ctx context.Context, accountID, token string, entry GuestEntry) (MergeOutcome, error) {
	if err := validateItem(entry.ProductID, entry.Quantity); err != nil {
		return MergeFailed, err
	}

	snapshot, err := s.snapshot(ctx, entry.ProductID, entry.Snapshot)
	if err != nil {
		return MergeFailed, err
	}

	outcome := MergeAdded
	marker := mergeMarker(token, entry.ProductID)
	_, err = s.mutate(ctx, "merge guest entry", accountID, func(a *models.Account) bool {
		if token != "" && slices.Contains(a.MergedGuestEntries, marker) {
			outcome = MergeSkipped
			return false
		}
		outcome = MergeAdded
		addEntry(a, entry.ProductID, entry.Quantity, snapshot)
		if token != "" {
			a.MergedGuestEntries = append(a.MergedGuestEntries, marker)
			if n := len(a.MergedGuestEntries); n > MaxMergeMarkers {
				a.MergedGuestEntries = a.MergedGuestEntries[n-MaxMergeMarkers:]
			}
		}
		return true
	})
	if err != nil {
		return MergeFailed, err
	}
	return outcome, nil
}
