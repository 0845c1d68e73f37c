package api

import (
	"context"
	"net/http"
)

// Partition is this member's slice of the event types.
type Partition interface {
	Size() int
	Index() int
}

type topicLister interface {
	Topics() []string
}

type subscriptionLister interface {
	Subscriptions() []string
}

type streamLengths interface {
	StreamLengths(ctx context.Context, keys []string) (map[string]int64, error)
}

type clientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	instanceID string
	partition  Partition
	producers  topicLister
	consumers  subscriptionLister
	streams    streamLengths
	hub        clientCounter
}

func NewDashboardHandler(instanceID string, p Partition, producers topicLister, consumers subscriptionLister,
	streams streamLengths, hub clientCounter) *DashboardHandler {
	return &DashboardHandler{
		instanceID: instanceID,
		partition:  p,
		producers:  producers,
		consumers:  consumers,
		streams:    streams,
		hub:        hub,
	}
}

type statusResponse struct {
	InstanceID       string           `json:"instanceId"`
	ClusterSize      int              `json:"clusterSize"`
	ClusterIndex     int              `json:"clusterIndex"`
	Producers        []string         `json:"producers"`
	Consumers        []string         `json:"consumers"`
	StreamLengths    map[string]int64 `json:"streamLengths,omitempty"`
	WebSocketClients int              `json:"websocketClients"`
}

// Status reports the partition and the producer and consumer handles held
// by this instance, with the length of every produced stream.
func (h *DashboardHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		InstanceID:   h.instanceID,
		ClusterSize:  h.partition.Size(),
		ClusterIndex: h.partition.Index(),
		Producers:    h.producers.Topics(),
		Consumers:    h.consumers.Subscriptions(),
	}
	if resp.Producers == nil {
		resp.Producers = []string{}
	}
	if resp.Consumers == nil {
		resp.Consumers = []string{}
	}
	if len(resp.Producers) > 0 {
		lengths, err := h.streams.StreamLengths(r.Context(), resp.Producers)
		if err != nil {
			respondError(w, r, http.StatusServiceUnavailable, "failed to read stream lengths")
			return
		}
		resp.StreamLengths = lengths
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}
