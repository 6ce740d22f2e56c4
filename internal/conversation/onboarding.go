package conversation

import (
	"fmt"
	"strings"

	"aprs-friend-alert/internal/model"
)

const helpText = `Here is what I can do:
/start - register with the bot
/help - show this message
/addaddress [label] - save a new address
/rmaddress [id] - delete one of your addresses
/show - show your name and saved addresses
/chname [name] - change your name
/quit - cancel the current step or stop following

For the owner:
en route to <name or label> [alert <name>, <name>] - start following
/rmaddress [username] [id] - delete an address of another user
/verify [name] - verify a new user
/rmuser [name] - delete a user
/takeover [key] - become the owner using the setup key`

func (m *Manager) cmdHelp(t *turn) error {
	m.say(t, helpText)
	return nil
}

func (m *Manager) cmdStart(t *turn) error {
	if t.known {
		m.reply(t, "Welcome back, %s! Send /help to see what I can do.", t.user.Name)
		return nil
	}
	if m.dir.Owner() == "" {
		if err := t.to(evAskSetupKey); err != nil {
			return err
		}
		m.reply(t, "Hi! This bot has no owner yet. Please send the setup key.")
		return nil
	}
	return m.askDisplayName(t)
}

func (m *Manager) askDisplayName(t *turn) error {
	if err := t.to(evAskName); err != nil {
		return err
	}
	suggested := strings.TrimSpace(t.msg.FirstName)
	t.conv.Scratch.SuggestedName = suggested
	if suggested != "" {
		m.reply(t, "How should I call you? Send a name, or yes to use %q.", suggested)
	} else {
		m.reply(t, "How should I call you? Please send a name.")
	}
	return nil
}

func (m *Manager) onSetupKey(t *turn) error {
	if t.text != m.cfg.SetupKey {
		m.logger.Warn(moduleName, "Wrong setup key", map[string]interface{}{"chat_id": t.msg.ChatID})
		return userErr("That is not the setup key. Try again, or /quit.")
	}
	if err := m.dir.SetOwner(t.ctx, t.msg.ChatID); err != nil {
		return err
	}
	m.logger.Info(moduleName, "Owner bound", map[string]interface{}{"chat_id": t.msg.ChatID})
	if t.known {
		if err := t.to(evDone); err != nil {
			return err
		}
		m.reply(t, "You are now the owner, %s.", t.user.Name)
		return nil
	}
	m.reply(t, "Setup key accepted, you are the owner.")
	return m.askDisplayName(t)
}

func (m *Manager) onDisplayName(t *turn) error {
	name := t.text
	if isYes(name) && t.conv.Scratch.SuggestedName != "" {
		name = t.conv.Scratch.SuggestedName
	}
	if name == "" {
		return userErr("Please send a name.")
	}
	user, err := m.dir.Upsert(t.ctx, t.msg.ChatID, name)
	if err != nil {
		return err
	}
	if err := t.to(evDone); err != nil {
		return err
	}

	m.logger.Info(moduleName, "User registered", map[string]interface{}{
		"chat_id":  user.ChatID,
		"name":     user.Name,
		"verified": user.Verified,
	})
	if user.Verified {
		m.reply(t, "Hi %s, you are all set. Send /help to see what I can do.", user.Name)
		return nil
	}
	m.reply(t, "Hi %s! The owner has to verify you before you can save addresses.", user.Name)
	m.notifyOwner(t.ctx, t.msg.ChatID, fmt.Sprintf("%s just registered. Send /verify %s to verify them.", user.Name, user.Name))
	return nil
}

func (m *Manager) cmdTakeover(t *turn, key string) error {
	if key == "" {
		return userErr("Usage: /takeover [key]")
	}
	if key != m.cfg.SetupKey {
		m.logger.Warn(moduleName, "Takeover with wrong key", map[string]interface{}{"chat_id": t.msg.ChatID})
		return userErr("That is not the setup key.")
	}
	previous := m.dir.Owner()
	if previous == t.msg.ChatID {
		m.reply(t, "You already are the owner.")
		return nil
	}
	if err := m.dir.SetOwner(t.ctx, t.msg.ChatID); err != nil {
		return err
	}
	m.logger.Info(moduleName, "Ownership taken over", map[string]interface{}{
		"chat_id":  t.msg.ChatID,
		"previous": previous,
	})
	if previous != "" {
		who := t.msg.ChatID
		if t.known {
			who = t.user.Name
		}
		m.sink.Send(t.ctx, previous, fmt.Sprintf("Ownership of this bot was taken over by %s.", who))
	}
	if !t.known {
		m.reply(t, "You are now the owner.")
		return m.askDisplayName(t)
	}
	m.reply(t, "You are now the owner, %s.", t.user.Name)
	return nil
}

func (m *Manager) cmdQuit(t *turn) error {
	wasIdle := t.conv.State == model.StateIdle
	if err := t.to(evReset); err != nil {
		return err
	}
	stopped := false
	if m.dir.IsOwner(t.msg.ChatID) {
		stopped = m.session.Stop()
	}
	switch {
	case stopped:
		m.reply(t, "Stopped following.")
	case !wasIdle:
		m.reply(t, "Cancelled.")
	default:
		m.reply(t, "Nothing to cancel.")
	}
	return nil
}
