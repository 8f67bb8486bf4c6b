package dispatch

import (
	"context"
	"fmt"

	"courier/internal/domain"
)

// Resolver resolves the conversation membership and guarantees a session
// exists for every recipient device before encryption starts.
type Resolver struct {
	directory   domain.Directory
	sessions    domain.SessionOracle
	establisher *Establisher
}

// NewResolver constructs a Resolver.
func NewResolver(directory domain.Directory, sessions domain.SessionOracle, establisher *Establisher) *Resolver {
	return &Resolver{directory: directory, sessions: sessions, establisher: establisher}
}

// PrepareRecipients fetches the current membership of the conversation,
// partitions the listed devices into those with and without an existing
// session, establishes sessions for the latter in one batch, and returns the
// membership unchanged. The sender's own sending device never needs a
// session with itself and is excluded from the partition.
func (r *Resolver) PrepareRecipients(
	ctx context.Context,
	sender domain.UserID,
	senderDevice domain.DeviceID,
	conversation domain.ConversationID,
) ([]domain.RecipientContact, error) {
	recipients, err := r.directory.DetailedMembers(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("resolve members of %s: %w", conversation, err)
	}

	missing := make(map[domain.UserID][]domain.DeviceID)
	for _, contact := range recipients {
		for _, device := range contact.Devices {
			if contact.ContactID == sender && device == senderDevice {
				continue
			}
			ok, err := r.sessions.SessionExists(contact.ContactID, device)
			if err != nil {
				return nil, fmt.Errorf("check session with %s/%s: %w", contact.ContactID, device, err)
			}
			if !ok {
				missing[contact.ContactID] = append(missing[contact.ContactID], device)
			}
		}
	}

	if err := r.establisher.Establish(ctx, missing); err != nil {
		return nil, err
	}
	return recipients, nil
}
