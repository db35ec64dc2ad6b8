package service

import (
	"fmt"

	"winbridge/internal/models"
)

// ChannelRegistry maps watched channel ids to the label shown to authors and the leader
type ChannelRegistry struct {
	labels  map[string]string
	ordered []string
}

func NewChannelRegistry(channels []models.Channel) (*ChannelRegistry, error) {
	r := &ChannelRegistry{
		labels:  make(map[string]string, len(channels)),
		ordered: make([]string, 0, len(channels)),
	}
	for _, ch := range channels {
		if ch.ChannelID == "" {
			return nil, fmt.Errorf("empty channel id in channel configuration")
		}
		if _, exists := r.labels[ch.ChannelID]; exists {
			return nil, fmt.Errorf("duplicate channel id: %s", ch.ChannelID)
		}
		label := ch.Label
		if label == "" {
			label = "#" + ch.ChannelID
		}
		r.labels[ch.ChannelID] = label
		r.ordered = append(r.ordered, ch.ChannelID)
	}
	if len(r.labels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	return r, nil
}

// Label returns the source label for a watched channel
func (r *ChannelRegistry) Label(channelID string) (string, bool) {
	label, ok := r.labels[channelID]
	return label, ok
}

// IsWatched reports whether messages from channelID are classified
func (r *ChannelRegistry) IsWatched(channelID string) bool {
	_, ok := r.labels[channelID]
	return ok
}

// ChannelIDs returns the watched channels in configuration order
func (r *ChannelRegistry) ChannelIDs() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}
