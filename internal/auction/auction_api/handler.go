package auction_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-auction/internal/auction"
	"ms-auction/internal/auctionerr"
	"ms-auction/internal/auth"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Service    *auction.Service
	Logger     *logger.Logger
	BidTimeout time.Duration
}

func NewHandler(svc *auction.Service, log *logger.Logger, bidTimeout time.Duration) *Handler {
	if bidTimeout <= 0 {
		bidTimeout = 5 * time.Second
	}
	return &Handler{Service: svc, Logger: log, BidTimeout: bidTimeout}
}

// Register mounts the auction routes. authn must verify the bearer token and
// store its claims in the request context.
func (h *Handler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/api/auctions", func(r chi.Router) {
		r.Get("/", h.ListAuctions)
		r.Get("/{auctionId}", h.GetAuction)
		r.Get("/{auctionId}/bids", h.BidHistory)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/{auctionId}/bids", h.PlaceBid)
			r.With(auth.RequireRole(models.RoleAgent, models.RoleAdmin, models.RoleSuperAdmin)).
				Post("/", h.CreateAuction)
		})
	})

	r.Route("/api/admin/auctions", func(r chi.Router) {
		r.Use(authn)
		r.Use(auth.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
		r.Post("/{auctionId}/approve", h.ApproveListing)
		r.Post("/{auctionId}/reject", h.RejectListing)
		r.Post("/{auctionId}/cancel", h.CancelAuction)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if auctionerr.CodeOf(err) == auctionerr.InternalError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", op, r.URL.Path, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s %s rejected: %v", op, r.URL.Path, err))
	}
	utils.WriteError(w, err)
}

func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	page, limit, err := utils.Pagination(r)
	if err != nil {
		h.fail(w, r, "ListAuctions", err)
		return
	}
	q := r.URL.Query()

	query := auction.ListQuery{
		Filter: models.AuctionFilter{
			Category:   q.Get("category"),
			ActiveOnly: q.Get("view") == "active",
		},
		Sort: models.SortKey(q.Get("sort")),
		Page: models.Page{Page: page, Limit: limit},
	}
	for _, s := range utils.CSV(q.Get("status")) {
		query.Filter.Statuses = append(query.Filter.Statuses, models.ListingStatus(s))
	}
	for _, s := range utils.CSV(q.Get("auctionStatus")) {
		query.Filter.AuctionStatuses = append(query.Filter.AuctionStatuses, models.AuctionStatus(s))
	}

	result, err := h.Service.ListAuctions(r.Context(), query)
	if err != nil {
		h.fail(w, r, "ListAuctions", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "auctions retrieved", result)
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.GetAuction(r.Context(), chi.URLParam(r, "auctionId"))
	if err != nil {
		h.fail(w, r, "GetAuction", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "auction retrieved", a)
}

func (h *Handler) BidHistory(w http.ResponseWriter, r *http.Request) {
	bids, err := h.Service.BidHistory(r.Context(), chi.URLParam(r, "auctionId"))
	if err != nil {
		h.fail(w, r, "BidHistory", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "bids retrieved", bids)
}

type bidRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionId")

	var body bidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, r, "PlaceBid", auctionerr.Validation("body", "must be a JSON object with an amount"))
		return
	}
	if body.Amount == nil {
		h.fail(w, r, "PlaceBid", auctionerr.Validation("amount", "is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.BidTimeout)
	defer cancel()

	bid, err := h.Service.PlaceBid(ctx, auction.BidRequest{
		AuctionID:      auctionID,
		Bidder:         callerAsUser(r),
		Amount:         *body.Amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, "PlaceBid", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "bid accepted", bid)
}

func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var in models.AuctionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.fail(w, r, "CreateAuction", auctionerr.Validation("body", "is not valid JSON: "+err.Error()))
		return
	}
	a, err := h.Service.CreateAuction(r.Context(), callerAsUser(r), in)
	if err != nil {
		h.fail(w, r, "CreateAuction", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "auction created", a)
}

func (h *Handler) ApproveListing(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.ApproveListing(r.Context(), chi.URLParam(r, "auctionId"))
	if err != nil {
		h.fail(w, r, "ApproveListing", err)
		return
	}
	h.Logger.LogSecurity("LISTING_APPROVED", fmt.Sprintf("auction=%s by=%s", a.ID, auth.UserID(r.Context())))
	utils.WriteSuccess(w, http.StatusOK, "listing approved", a)
}

func (h *Handler) RejectListing(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.RejectListing(r.Context(), chi.URLParam(r, "auctionId"))
	if err != nil {
		h.fail(w, r, "RejectListing", err)
		return
	}
	h.Logger.LogSecurity("LISTING_REJECTED", fmt.Sprintf("auction=%s by=%s", a.ID, auth.UserID(r.Context())))
	utils.WriteSuccess(w, http.StatusOK, "listing rejected", a)
}

func (h *Handler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.CancelAuction(r.Context(), chi.URLParam(r, "auctionId"))
	if err != nil {
		h.fail(w, r, "CancelAuction", err)
		return
	}
	h.Logger.LogSecurity("AUCTION_CANCELLED", fmt.Sprintf("auction=%s by=%s", a.ID, auth.UserID(r.Context())))
	utils.WriteSuccess(w, http.StatusOK, "auction cancelled", a)
}

// callerAsUser maps the verified token onto the user row kept alongside bids
// and auctions. Anonymous requests yield a zero User.
func callerAsUser(r *http.Request) models.User {
	c := auth.ClaimsFrom(r.Context())
	if c == nil {
		return models.User{}
	}
	return models.User{ID: c.Subject, Email: c.Email, Name: c.Name, Role: c.Role()}
}
