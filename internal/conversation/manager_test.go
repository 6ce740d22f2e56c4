package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"aprs-friend-alert/internal/directory"
	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID = "100"
	bobID   = "200"
	carolID = "300"
	key     = "s3cret"
)

var (
	berlin  = model.Coordinate{Longitude: 13.4, Latitude: 52.5}
	potsdam = model.Coordinate{Longitude: 13.06, Latitude: 52.4}
)

type memStore struct {
	mu  sync.Mutex
	doc model.DirectoryDocument
}

func (s *memStore) Load(ctx context.Context) (model.DirectoryDocument, error) {
	return model.NewDirectoryDocument(), nil
}

func (s *memStore) Save(ctx context.Context, doc model.DirectoryDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	return nil
}

type recordingSink struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (s *recordingSink) Send(ctx context.Context, chatID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.msgs == nil {
		s.msgs = map[string][]string{}
	}
	s.msgs[chatID] = append(s.msgs[chatID], text)
}

func (s *recordingSink) all(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs[chatID]...)
}

func (s *recordingSink) last(chatID string) string {
	msgs := s.all(chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

type fakeGeocoder struct {
	results   map[string]model.Coordinate
	validated bool
	panics    bool
}

func (g *fakeGeocoder) Geocode(ctx context.Context, text string) (model.Coordinate, error) {
	if g.panics {
		panic("geocoder exploded")
	}
	if c, ok := g.results[text]; ok {
		return c, nil
	}
	return model.Coordinate{}, errors.New("not found")
}

func (g *fakeGeocoder) Validated() bool { return g.validated }

type fakeFollower struct {
	started    bool
	dest       follow.Destination
	recipients []string
	stops      int
	err        error
}

func (f *fakeFollower) Start(dest follow.Destination, recipients []string) error {
	if f.err != nil {
		return f.err
	}
	f.started = true
	f.dest = dest
	f.recipients = recipients
	return nil
}

func (f *fakeFollower) Stop() bool {
	f.stops++
	was := f.started
	f.started = false
	return was
}

func (f *fakeFollower) Snapshot() follow.Snapshot {
	return follow.Snapshot{Active: f.started, Destination: &f.dest, Recipients: f.recipients}
}

type harness struct {
	t        *testing.T
	manager  *Manager
	dir      *directory.Directory
	sink     *recordingSink
	geocoder *fakeGeocoder
	follower Follower
}

func newHarness(t *testing.T, follower Follower) *harness {
	t.Helper()
	dir, err := directory.Load(context.Background(), &memStore{}, logger.NewNopLogger())
	require.NoError(t, err)
	if follower == nil {
		follower = &fakeFollower{}
	}
	h := &harness{
		t:        t,
		dir:      dir,
		sink:     &recordingSink{},
		geocoder: &fakeGeocoder{validated: true, results: map[string]model.Coordinate{"Alexanderplatz 1, Berlin": berlin}},
		follower: follower,
	}
	h.manager = NewManager(dir, memory.NewConversationRepository(), h.geocoder, follower, h.sink,
		Config{SetupKey: key, FollowEnabled: true}, logger.NewNopLogger())
	return h
}

func (h *harness) send(chatID, text string) string {
	h.manager.Handle(context.Background(), Message{ChatID: chatID, Text: text, FirstName: "Tester"})
	return h.sink.last(chatID)
}

func (h *harness) state(chatID string) model.ConversationState {
	conv, ok := h.manager.convs.Get(chatID)
	if !ok {
		return model.StateIdle
	}
	return conv.State
}

// seed registers the owner and verified users with addresses without going
// through the dialogs.
func (h *harness) seed(users map[string]string, addresses map[string][]model.AddressRecord) {
	ctx := context.Background()
	require.NoError(h.t, h.dir.SetOwner(ctx, ownerID))
	for id, name := range users {
		_, err := h.dir.Upsert(ctx, id, name)
		require.NoError(h.t, err)
		require.NoError(h.t, h.dir.Verify(ctx, id))
	}
	for id, addrs := range addresses {
		for _, a := range addrs {
			require.NoError(h.t, h.dir.AddAddress(ctx, id, a))
		}
	}
}

func TestOwnerOnboarding(t *testing.T) {
	h := newHarness(t, nil)

	assert.Contains(t, h.send(ownerID, "/start"), "setup key")
	assert.Equal(t, model.StateAwaitingSetupKey, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, "wrong"), "not the setup key")
	assert.Equal(t, model.StateAwaitingSetupKey, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, key), "How should I call you")
	assert.Equal(t, model.StateAwaitingDisplayName, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, "yes"), "all set")
	assert.Equal(t, model.StateIdle, h.state(ownerID))

	u, ok := h.dir.Get(ownerID)
	require.True(t, ok)
	assert.Equal(t, "Tester", u.Name)
	assert.True(t, u.Verified)
	assert.Equal(t, ownerID, h.dir.Owner())
}

func TestGuestNeedsVerification(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice"}, nil)

	assert.Contains(t, h.send(bobID, "/start"), "How should I call you")
	assert.Contains(t, h.send(bobID, "Bob"), "verify you")
	assert.Contains(t, h.sink.last(ownerID), "/verify Bob")

	assert.Contains(t, h.send(bobID, "/addaddress Home"), "verified")
	assert.Equal(t, model.StateIdle, h.state(bobID))

	assert.Contains(t, h.send(bobID, "/verify Bob"), "Only the owner")

	assert.Contains(t, h.send(ownerID, "/verify bob"), "now verified")
	assert.Contains(t, h.sink.last(bobID), "You have been verified")
	u, _ := h.dir.Get(bobID)
	assert.True(t, u.Verified)
}

func TestAddAddressDialog(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice"}, nil)

	assert.Contains(t, h.send(ownerID, "/addaddress"), "What should the new address be called")
	assert.Equal(t, model.StateAwaitingAddressLabel, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, "Home"), "send the address")
	assert.Equal(t, model.StateAwaitingAddressText, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, "Nowhere 0"), "could not find")
	assert.Equal(t, model.StateAwaitingAddressText, h.state(ownerID))

	reply := h.send(ownerID, "Alexanderplatz 1, Berlin")
	assert.Contains(t, reply, "52.50000, 13.40000")
	assert.Contains(t, reply, "openstreetmap.org")
	assert.Equal(t, model.StateAwaitingAddressConfirmation, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, "maybe"), "yes or no")
	assert.Contains(t, h.send(ownerID, "no"), "again")
	assert.Equal(t, model.StateAwaitingAddressText, h.state(ownerID))

	h.send(ownerID, "Alexanderplatz 1, Berlin")
	assert.Contains(t, h.send(ownerID, "yes"), `Saved "Home"`)
	assert.Equal(t, model.StateIdle, h.state(ownerID))

	u, _ := h.dir.Get(ownerID)
	require.Len(t, u.Addresses, 1)
	assert.Equal(t, model.AddressRecord{Label: "Home", RawText: "Alexanderplatz 1, Berlin", Coordinate: berlin}, u.Addresses[0])

	assert.Contains(t, h.send(ownerID, "/addaddress home"), "already have an address")
}

func TestAddAddressRefusedWithoutRouting(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice"}, nil)
	h.geocoder.validated = false

	assert.Contains(t, h.send(ownerID, "/addaddress Home"), "unavailable")
	assert.Equal(t, model.StateIdle, h.state(ownerID))
}

func TestCommandsRejectedMidDialog(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice"}, nil)

	h.send(ownerID, "/addaddress")
	assert.Contains(t, h.send(ownerID, "/show"), "finish the current step")
	assert.Equal(t, model.StateAwaitingAddressLabel, h.state(ownerID))

	assert.Contains(t, h.send(ownerID, "/quit"), "Cancelled")
	assert.Equal(t, model.StateIdle, h.state(ownerID))
}

func TestQuitStopsFollowingForOwnerOnly(t *testing.T) {
	f := &fakeFollower{started: true}
	h := newHarness(t, f)
	h.seed(map[string]string{ownerID: "Alice", bobID: "Bob"}, nil)

	assert.Contains(t, h.send(bobID, "/quit"), "Nothing to cancel")
	assert.Equal(t, 0, f.stops)

	assert.Contains(t, h.send(ownerID, "/quit"), "Stopped following")
	assert.Equal(t, 1, f.stops)
	assert.False(t, f.started)
}

func TestRemoveUser(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice", bobID: "Bob"}, nil)

	assert.Contains(t, h.send(ownerID, "/rmuser Alice"), "cannot delete self")
	_, ok := h.dir.Get(ownerID)
	assert.True(t, ok)

	assert.Contains(t, h.send(ownerID, "/rmuser Bob"), "Deleted Bob")
	_, ok = h.dir.Get(bobID)
	assert.False(t, ok)

	assert.Contains(t, h.send(ownerID, "/rmuser Bob"), "don't know")
}

func TestRemoveAddress(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice", bobID: "Bob"}, map[string][]model.AddressRecord{
		ownerID: {{Label: "Home", Coordinate: berlin}, {Label: "Work", Coordinate: potsdam}},
		bobID:   {{Label: "Flat", Coordinate: potsdam}},
	})

	assert.Contains(t, h.send(ownerID, "/rmaddress 3"), "no address with that number")
	assert.Contains(t, h.send(ownerID, "/rmaddress 1"), `Deleted "Home"`)
	assert.Contains(t, h.send(ownerID, "/rmaddress Bob 1"), `Deleted "Flat" of Bob`)
	assert.Contains(t, h.send(bobID, "/rmaddress Alice 1"), "Only the owner")

	u, _ := h.dir.Get(ownerID)
	require.Len(t, u.Addresses, 1)
	assert.Equal(t, "Work", u.Addresses[0].Label)
}

func TestUnknownChatGetsStartHint(t *testing.T) {
	h := newHarness(t, nil)
	assert.Contains(t, h.send("999", "hello"), "/start")
	assert.Contains(t, h.send("999", "/show"), "/start")
}

func TestPanicIsAnsweredWithApology(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice"}, nil)
	h.geocoder.panics = true

	h.send(ownerID, "/addaddress Home")
	assert.Equal(t, apology, h.send(ownerID, "Somewhere"))
	assert.Equal(t, model.StateIdle, h.state(ownerID))
}

func TestTakeover(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice", bobID: "Bob"}, nil)

	assert.Contains(t, h.send(bobID, "/takeover nope"), "not the setup key")
	assert.Equal(t, ownerID, h.dir.Owner())

	assert.Contains(t, h.send(bobID, "/takeover "+key), "now the owner")
	assert.Equal(t, bobID, h.dir.Owner())
	assert.Contains(t, h.sink.last(ownerID), "taken over by Bob")

	assert.Contains(t, h.send(carolID, "/takeover "+key), "How should I call you")
	assert.Equal(t, carolID, h.dir.Owner())
	h.send(carolID, "Carol")
	u, _ := h.dir.Get(carolID)
	assert.True(t, u.Verified)
}

func TestShowListsAddressesAndStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(map[string]string{ownerID: "Alice", bobID: "Bob"}, map[string][]model.AddressRecord{
		ownerID: {{Label: "Home", RawText: "Alexanderplatz 1, Berlin", Coordinate: berlin}},
	})

	reply := h.send(ownerID, "/show")
	assert.Contains(t, reply, "Name: Alice (verified)")
	assert.Contains(t, reply, "1. Home: Alexanderplatz 1, Berlin")
	assert.Contains(t, reply, "- Bob, 0 address(es)")
	assert.Contains(t, reply, "Not following anybody")

	reply = h.send(bobID, "/show")
	assert.NotContains(t, reply, "Users:")
}
