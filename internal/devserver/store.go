package devserver

import (
	"sync"
	"time"

	"horizon/internal/api"
)

// memoryStore holds the seeded tenant data the stub backend serves. All
// mutations go through the mutex; handlers copy slices out rather than
// aliasing internal state.
type memoryStore struct {
	mu sync.Mutex

	org         api.Organization
	users       []api.User
	invitations []api.Invitation
	streams     []api.ResearchStream
	chats       []api.Conversation

	nextInvitationID int64
	nextStreamID     int64
	nextConversation int64
}

func newMemoryStore() *memoryStore {
	now := time.Now().UTC()
	return &memoryStore{
		org: api.Organization{
			ID: 1, Name: "Acme Research", Slug: "acme-research",
			Plan: "team", MemberCount: 2, CreatedAt: now.AddDate(0, -6, 0),
		},
		users: []api.User{
			{ID: 1, Email: "ada@acme-research.io", Name: "Ada Moreno", Role: "admin", Active: true, CreatedAt: now.AddDate(0, -6, 0)},
			{ID: 2, Email: "grace@acme-research.io", Name: "Grace Ito", Role: "member", Active: true, CreatedAt: now.AddDate(0, -3, 0)},
		},
		invitations: []api.Invitation{
			{ID: 1, Email: "lin@acme-research.io", Role: "member", Status: "pending", CreatedAt: now.AddDate(0, 0, -2), ExpiresAt: now.AddDate(0, 0, 5)},
		},
		streams: []api.ResearchStream{
			{ID: 1, Name: "LLM alignment", Query: "alignment OR interpretability", Sources: []string{"arxiv"}, Frequency: "daily", CreatedAt: now.AddDate(0, -2, 0), UpdatedAt: now},
			{ID: 2, Name: "Protein folding", Query: "alphafold", Sources: []string{"arxiv", "biorxiv"}, Frequency: "weekly", Archived: true, CreatedAt: now.AddDate(0, -4, 0), UpdatedAt: now.AddDate(0, -1, 0)},
		},
		chats: []api.Conversation{
			{ID: 1, Title: "Setting up alignment stream", MessageCount: 6, CreatedAt: now.AddDate(0, 0, -7), UpdatedAt: now.AddDate(0, 0, -7)},
		},
		nextInvitationID: 2,
		nextStreamID:     3,
		nextConversation: 2,
	}
}

func (s *memoryStore) organization() api.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.org
}

func (s *memoryStore) members() []api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.User(nil), s.users...)
}

func (s *memoryStore) pendingInvitations() []api.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Invitation(nil), s.invitations...)
}

func (s *memoryStore) invite(email, role string) api.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	invitation := api.Invitation{
		ID: s.nextInvitationID, Email: email, Role: role, Status: "pending",
		CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 7),
	}
	s.nextInvitationID++
	s.invitations = append(s.invitations, invitation)
	return invitation
}

func (s *memoryStore) revokeInvitation(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, invitation := range s.invitations {
		if invitation.ID == id {
			s.invitations = append(s.invitations[:i], s.invitations[i+1:]...)
			return true
		}
	}
	return false
}

func (s *memoryStore) resendInvitation(id int64) (api.Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invitations {
		if s.invitations[i].ID == id {
			s.invitations[i].ExpiresAt = time.Now().UTC().AddDate(0, 0, 7)
			return s.invitations[i], true
		}
	}
	return api.Invitation{}, false
}

func (s *memoryStore) listStreams(includeArchived bool) []api.ResearchStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.ResearchStream, 0, len(s.streams))
	for _, stream := range s.streams {
		if stream.Archived && !includeArchived {
			continue
		}
		out = append(out, stream)
	}
	return out
}

func (s *memoryStore) getStream(id int64) (api.ResearchStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stream := range s.streams {
		if stream.ID == id {
			return stream, true
		}
	}
	return api.ResearchStream{}, false
}

func (s *memoryStore) createStream(draft api.StreamDraft) api.ResearchStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	stream := api.ResearchStream{
		ID: s.nextStreamID, Name: draft.Name, Query: draft.Query,
		Sources: draft.Sources, Frequency: draft.Frequency,
		CreatedAt: now, UpdatedAt: now,
	}
	s.nextStreamID++
	s.streams = append(s.streams, stream)
	return stream
}

func (s *memoryStore) updateStream(id int64, draft api.StreamDraft) (api.ResearchStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.streams {
		if s.streams[i].ID == id {
			s.streams[i].Name = draft.Name
			s.streams[i].Query = draft.Query
			s.streams[i].Sources = draft.Sources
			s.streams[i].Frequency = draft.Frequency
			s.streams[i].UpdatedAt = time.Now().UTC()
			return s.streams[i], true
		}
	}
	return api.ResearchStream{}, false
}

func (s *memoryStore) archiveStream(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.streams {
		if s.streams[i].ID == id {
			s.streams[i].Archived = true
			s.streams[i].UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

func (s *memoryStore) conversations() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Conversation(nil), s.chats...)
}

func (s *memoryStore) conversation(id int64) (api.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.ID == id {
			return chat, true
		}
	}
	return api.Conversation{}, false
}

// recordTurn appends to an existing conversation or opens a new one,
// returning the conversation id the turn belongs to.
func (s *memoryStore) recordTurn(conversationID int64, title string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range s.chats {
		if s.chats[i].ID == conversationID {
			s.chats[i].MessageCount += 2
			s.chats[i].UpdatedAt = now
			return conversationID
		}
	}
	id := s.nextConversation
	s.nextConversation++
	if len(title) > 48 {
		title = title[:48]
	}
	s.chats = append(s.chats, api.Conversation{
		ID: id, Title: title, MessageCount: 2, CreatedAt: now, UpdatedAt: now,
	})
	return id
}

func (s *memoryStore) deactivateUser(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].Active = false
			return true
		}
	}
	return false
}
