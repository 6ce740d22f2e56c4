// Package conversation runs the per-chat dialogs: onboarding, address entry,
// administration commands and the "en route to" command that starts a
// follow session.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"aprs-friend-alert/internal/directory"
	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/model"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/repository/contract"

	"github.com/looplab/fsm"
)

const moduleName = "CONVERSATION"

const apology = "Sorry, something went wrong on my side. Please try again later."

// Message is one inbound chat message.
type Message struct {
	ChatID    string
	Text      string
	FirstName string
}

type Sink interface {
	Send(ctx context.Context, chatID, text string)
}

type Geocoder interface {
	Geocode(ctx context.Context, text string) (model.Coordinate, error)
	Validated() bool
}

type Follower interface {
	Start(dest follow.Destination, recipients []string) error
	Stop() bool
	Snapshot() follow.Snapshot
}

type Config struct {
	SetupKey string
	// FollowEnabled is false when no position source passed startup checks.
	FollowEnabled  bool
	GeocodeTimeout time.Duration
}

type Manager struct {
	dir      *directory.Directory
	convs    contract.ConversationRepository
	geocoder Geocoder
	session  Follower
	sink     Sink
	cfg      Config
	logger   logger.ILogger
}

func NewManager(dir *directory.Directory, convs contract.ConversationRepository, geocoder Geocoder, session Follower, sink Sink, cfg Config, log logger.ILogger) *Manager {
	if cfg.GeocodeTimeout == 0 {
		cfg.GeocodeTimeout = 20 * time.Second
	}
	return &Manager{
		dir:      dir,
		convs:    convs,
		geocoder: geocoder,
		session:  session,
		sink:     sink,
		cfg:      cfg,
		logger:   log,
	}
}

// turn carries everything one message needs.
type turn struct {
	ctx    context.Context
	msg    Message
	text   string
	conv   *model.Conversation
	dialog *fsm.FSM
	user   model.UserRecord
	known  bool
}

func (t *turn) to(event string) error {
	return fire(t.ctx, t.dialog, t.conv, event)
}

func (m *Manager) reply(t *turn, format string, args ...interface{}) {
	m.say(t, fmt.Sprintf(format, args...))
}

func (m *Manager) say(t *turn, text string) {
	m.sink.Send(t.ctx, t.msg.ChatID, text)
}

// Handle processes one message. Messages of the same chat must not be
// handled concurrently.
func (m *Manager) Handle(ctx context.Context, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error(moduleName, "Panic while handling message", map[string]interface{}{
				"chat_id": msg.ChatID,
				"error":   fmt.Sprint(rec),
				"stack":   string(debug.Stack()),
			})
			m.convs.Delete(msg.ChatID)
			m.sink.Send(ctx, msg.ChatID, apology)
		}
	}()

	conv, ok := m.convs.Get(msg.ChatID)
	if !ok {
		conv = model.NewConversation(msg.ChatID)
	}
	user, known := m.dir.Get(msg.ChatID)
	t := &turn{
		ctx:    ctx,
		msg:    msg,
		text:   strings.TrimSpace(msg.Text),
		conv:   conv,
		dialog: newDialog(conv.State),
		user:   user,
		known:  known,
	}

	err := m.route(t)
	if err != nil {
		if ue, ok := asUserError(err); ok {
			m.say(t, ue.Message)
		} else {
			m.logger.Error(moduleName, "Failed to handle message", map[string]interface{}{
				"chat_id": msg.ChatID,
				"state":   string(conv.State),
				"error":   err.Error(),
			})
			conv.Reset()
			m.say(t, apology)
		}
	}

	if conv.State == model.StateIdle {
		m.convs.Delete(msg.ChatID)
	} else {
		m.convs.Save(conv)
	}
}

func (m *Manager) route(t *turn) error {
	if strings.HasPrefix(t.text, "/") {
		cmd, args := splitCommand(t.text)
		if cmd == "/quit" {
			return m.cmdQuit(t)
		}
		if t.conv.State != model.StateIdle {
			return userErr("Please finish the current step first, or send /quit to cancel it.")
		}
		return m.command(t, cmd, args)
	}

	switch t.conv.State {
	case model.StateAwaitingSetupKey:
		return m.onSetupKey(t)
	case model.StateAwaitingDisplayName:
		return m.onDisplayName(t)
	case model.StateAwaitingAddressLabel:
		return m.onAddressLabel(t)
	case model.StateAwaitingAddressText:
		return m.onAddressText(t)
	case model.StateAwaitingAddressConfirmation:
		return m.onAddressConfirmation(t)
	case model.StateAwaitingAmbiguousDestinationChoice:
		return m.onDestinationChoice(t)
	}

	if !t.known {
		m.reply(t, "Hi! I don't know you yet. Send /start to register.")
		return nil
	}
	if dest, alertees, ok := parseEnRoute(t.text); ok {
		return m.onEnRoute(t, dest, alertees)
	}
	m.reply(t, "Sorry, I did not understand that. Send /help to see what I can do.")
	return nil
}

// splitCommand turns "/cmd@bot a b" into ("/cmd", "a b").
func splitCommand(text string) (string, string) {
	cmd, args, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (m *Manager) command(t *turn, cmd, args string) error {
	switch cmd {
	case "/start":
		return m.cmdStart(t)
	case "/help":
		return m.cmdHelp(t)
	case "/takeover":
		return m.cmdTakeover(t, args)
	}

	if !t.known {
		m.reply(t, "Hi! I don't know you yet. Send /start to register.")
		return nil
	}
	switch cmd {
	case "/addaddress":
		return m.cmdAddAddress(t, args)
	case "/rmaddress":
		return m.cmdRemoveAddress(t, args)
	case "/show":
		return m.cmdShow(t)
	case "/chname":
		return m.cmdChangeName(t, args)
	case "/verify":
		return m.cmdVerify(t, args)
	case "/rmuser":
		return m.cmdRemoveUser(t, args)
	}
	return userErr("Unknown command %s. Send /help to see what I can do.", cmd)
}

func (m *Manager) requireOwner(t *turn) error {
	if !m.dir.IsOwner(t.msg.ChatID) {
		return userErr("Only the owner can do that.")
	}
	return nil
}

func (m *Manager) routingAvailable() bool {
	return m.geocoder != nil && m.geocoder.Validated()
}

// notifyOwner tells the owner about something that happened in another chat.
func (m *Manager) notifyOwner(ctx context.Context, exceptChatID, text string) {
	owner := m.dir.Owner()
	if owner == "" || owner == exceptChatID {
		return
	}
	m.sink.Send(ctx, owner, text)
}

// lookupOne resolves a name to exactly one user.
func (m *Manager) lookupOne(name string, verifiedOnly bool) (model.UserRecord, error) {
	matches := m.dir.FindByName(name, verifiedOnly)
	switch len(matches) {
	case 0:
		if verifiedOnly {
			return model.UserRecord{}, userErr("I don't know a verified user called %q.", name)
		}
		return model.UserRecord{}, userErr("I don't know a user called %q.", name)
	case 1:
		return matches[0], nil
	default:
		return model.UserRecord{}, userErr("The name %q is ambiguous, %d users are called that. Ask them to pick distinct names with /chname.", name, len(matches))
	}
}

func isYes(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "ja", "ok":
		return true
	}
	return false
}

func isNo(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "no", "n", "nein":
		return true
	}
	return false
}

func geocodeFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return userErr("Looking up the address took too long. Please try again.")
	}
	return userErr("I could not find that address. Please send it again in a different form, or /quit.")
}
