package auction

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ms-auction/internal/auctionerr"
	"ms-auction/internal/models"
)

type ListQuery struct {
	Filter models.AuctionFilter
	Sort   models.SortKey
	Page   models.Page
}

// ListAuctions returns one page of auctions. The "ending soon" sort and the
// active view only ever contain LIVE (or SCHEDULED, for active) approved
// auctions whose end is still ahead; that is enforced by the store query.
func (s *Service) ListAuctions(ctx context.Context, q ListQuery) (*models.AuctionPage, error) {
	if q.Sort == "" {
		q.Sort = models.SortNewest
	}
	if !q.Sort.Valid() {
		return nil, auctionerr.Validation("sort", "must be one of ending_soon, newest, price_asc, price_desc")
	}
	for _, st := range q.Filter.Statuses {
		if !st.Valid() {
			return nil, auctionerr.Validation("status", fmt.Sprintf("unknown listing status %q", st))
		}
	}
	for _, st := range q.Filter.AuctionStatuses {
		if !st.Valid() {
			return nil, auctionerr.Validation("auctionStatus", fmt.Sprintf("unknown auction status %q", st))
		}
	}
	if q.Page.Page < 1 {
		q.Page.Page = 1
	}
	if q.Page.Limit < 1 {
		q.Page.Limit = 20
	}

	// Time-relative views are never cached; their membership changes with the clock.
	cacheable := s.cache != nil && q.Sort != models.SortEndingSoon && !q.Filter.ActiveOnly
	key := cacheKey(q)
	var gen int64
	if cacheable {
		raw, g, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.log.Warn("CACHE", fmt.Sprintf("Listing cache unavailable: %v", err))
			cacheable = false
		case ok:
			var page models.AuctionPage
			if err := json.Unmarshal(raw, &page); err == nil {
				return &page, nil
			}
		}
		gen = g
	}

	now := s.now()
	items, total, err := s.db.ListAuctions(ctx, q.Filter, q.Sort, q.Page, now)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	for i := range items {
		items[i] = Project(items[i], now)
	}

	page := &models.AuctionPage{
		Items:      items,
		Page:       q.Page.Page,
		Limit:      q.Page.Limit,
		Total:      total,
		TotalPages: (total + q.Page.Limit - 1) / q.Page.Limit,
	}
	if page.Items == nil {
		page.Items = []models.Auction{}
	}

	if cacheable {
		if raw, err := json.Marshal(page); err == nil {
			if err := s.cache.Set(ctx, gen, key, raw); err != nil {
				s.log.Warn("CACHE", fmt.Sprintf("Failed to cache listing page: %v", err))
			}
		}
	}
	return page, nil
}

// GetAuction returns the auction after applying any due lifecycle transition.
func (s *Service) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, a)
}

func cacheKey(q ListQuery) string {
	statuses := make([]string, len(q.Filter.Statuses))
	for i, st := range q.Filter.Statuses {
		statuses[i] = string(st)
	}
	sort.Strings(statuses)
	auctionStatuses := make([]string, len(q.Filter.AuctionStatuses))
	for i, st := range q.Filter.AuctionStatuses {
		auctionStatuses[i] = string(st)
	}
	sort.Strings(auctionStatuses)

	raw := fmt.Sprintf("s=%s|as=%s|c=%s|sort=%s|p=%d|l=%d",
		strings.Join(statuses, ","), strings.Join(auctionStatuses, ","), q.Filter.Category, q.Sort, q.Page.Page, q.Page.Limit)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
