package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/volkaert/simple-event-broker2/internal/catalog"
	"github.com/volkaert/simple-event-broker2/internal/domain"
	"github.com/volkaert/simple-event-broker2/internal/partition"
)

type consumerLookup interface {
	Has(subscription string) bool
}

// SubscriptionHandler exposes the catalog's subscriptions as this instance
// sees them, with credentials redacted.
type SubscriptionHandler struct {
	catalog   catalog.Lookup
	partition Partition
	consumers consumerLookup
}

func NewSubscriptionHandler(lookup catalog.Lookup, p Partition, consumers consumerLookup) *SubscriptionHandler {
	return &SubscriptionHandler{catalog: lookup, partition: p, consumers: consumers}
}

type subscriptionView struct {
	domain.Subscription
	OwnerIndex int  `json:"ownerIndex"`
	OwnedHere  bool `json:"ownedHere"`
	Consuming  bool `json:"consuming"`
}

func (h *SubscriptionHandler) view(sub domain.Subscription) subscriptionView {
	if sub.AuthClientSecret != "" {
		sub.AuthClientSecret = domain.Redacted
	}
	if sub.Secret != "" {
		sub.Secret = domain.Redacted
	}
	owner := partition.Owner(sub.EventTypeCode, h.partition.Size())
	return subscriptionView{
		Subscription: sub,
		OwnerIndex:   owner,
		OwnedHere:    owner == h.partition.Index(),
		Consuming:    h.consumers.Has(sub.Code),
	}
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.catalog.ListSubscriptions(r.Context())
	if err != nil {
		respondError(w, r, http.StatusBadGateway, "failed to list subscriptions")
		return
	}

	views := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, h.view(sub))
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	sub, err := h.catalog.GetSubscription(r.Context(), code)
	if err != nil {
		respondError(w, r, http.StatusBadGateway, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, r, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, h.view(*sub))
}
