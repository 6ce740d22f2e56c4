package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/model"
)

func (m *Manager) cmdAddAddress(t *turn, label string) error {
	if !t.user.Verified {
		return userErr("You have to be verified by the owner before you can save addresses.")
	}
	if !m.routingAvailable() {
		return userErr("Address lookup is currently unavailable.")
	}
	if label == "" {
		if err := t.to(evAskLabel); err != nil {
			return err
		}
		m.reply(t, "What should the new address be called? (e.g. Home)")
		return nil
	}
	if err := m.checkLabel(t, label); err != nil {
		return err
	}
	if err := t.to(evAskText); err != nil {
		return err
	}
	t.conv.Scratch.Label = label
	m.reply(t, "Please send the address for %q.", label)
	return nil
}

func (m *Manager) checkLabel(t *turn, label string) error {
	for _, a := range t.user.Addresses {
		if strings.EqualFold(a.Label, label) {
			return userErr("You already have an address called %q. Pick another label.", label)
		}
	}
	return nil
}

func (m *Manager) onAddressLabel(t *turn) error {
	if t.text == "" {
		return userErr("Please send a label for the address.")
	}
	if err := m.checkLabel(t, t.text); err != nil {
		return err
	}
	if err := t.to(evAskText); err != nil {
		return err
	}
	t.conv.Scratch.Label = t.text
	m.reply(t, "Please send the address for %q.", t.text)
	return nil
}

func (m *Manager) onAddressText(t *turn) error {
	if t.text == "" {
		return userErr("Please send the address as text.")
	}
	if !m.routingAvailable() {
		return userErr("Address lookup is currently unavailable. Send /quit to cancel.")
	}
	ctx, cancel := context.WithTimeout(t.ctx, m.cfg.GeocodeTimeout)
	defer cancel()
	coord, err := m.geocoder.Geocode(ctx, t.text)
	if err != nil {
		m.logger.Warn(moduleName, "Geocoding failed", map[string]interface{}{
			"chat_id": t.msg.ChatID,
			"error":   err.Error(),
		})
		return geocodeFailure(err)
	}
	if err := t.to(evAskConfirm); err != nil {
		return err
	}
	t.conv.Scratch.RawText = t.text
	t.conv.Scratch.Coordinate = &coord
	m.reply(t, "I found this location: %s\n%s\nIs this correct? (yes/no)", coord.String(), coord.MapURL())
	return nil
}

func (m *Manager) onAddressConfirmation(t *turn) error {
	scratch := t.conv.Scratch
	switch {
	case isYes(t.text):
		if scratch.Coordinate == nil {
			return fmt.Errorf("confirmation without coordinate for chat %s", t.msg.ChatID)
		}
		addr := model.AddressRecord{Label: scratch.Label, RawText: scratch.RawText, Coordinate: *scratch.Coordinate}
		if err := m.dir.AddAddress(t.ctx, t.msg.ChatID, addr); err != nil {
			return err
		}
		if err := t.to(evDone); err != nil {
			return err
		}
		m.reply(t, "Saved %q.", addr.Label)
		return nil
	case isNo(t.text):
		if err := t.to(evAskText); err != nil {
			return err
		}
		t.conv.Scratch.Coordinate = nil
		m.reply(t, "Okay, please send the address for %q again, maybe with more detail.", scratch.Label)
		return nil
	}
	return userErr("Please answer yes or no.")
}

// cmdRemoveAddress handles "/rmaddress 2" and, for the owner, "/rmaddress Bob 2".
func (m *Manager) cmdRemoveAddress(t *turn, args string) error {
	if args == "" {
		m.reply(t, "Usage: /rmaddress [id], see /show for the numbers.\n\n%s", formatAddresses(t.user))
		return nil
	}
	fields := strings.Fields(args)
	index, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return userErr("Usage: /rmaddress [id] or /rmaddress [username] [id]")
	}

	target := t.user
	if len(fields) > 1 {
		name := strings.Join(fields[:len(fields)-1], " ")
		if !strings.EqualFold(name, t.user.Name) {
			if err := m.requireOwner(t); err != nil {
				return err
			}
			if target, err = m.lookupOne(name, false); err != nil {
				return err
			}
		}
	}

	removed, err := m.dir.RemoveAddress(t.ctx, target.ChatID, index)
	if err != nil {
		return err
	}
	if target.ChatID == t.msg.ChatID {
		m.reply(t, "Deleted %q.", removed.Label)
	} else {
		m.reply(t, "Deleted %q of %s.", removed.Label, target.Name)
	}
	return nil
}

func (m *Manager) cmdShow(t *turn) error {
	var b strings.Builder
	status := "verified"
	if !t.user.Verified {
		status = "waiting for verification"
	}
	fmt.Fprintf(&b, "Name: %s (%s)\n", t.user.Name, status)
	b.WriteString(formatAddresses(t.user))

	if m.dir.IsOwner(t.msg.ChatID) {
		b.WriteString("\n\nUsers:\n")
		for _, u := range m.dir.Users() {
			mark := ""
			if !u.Verified {
				mark = " (unverified)"
			}
			fmt.Fprintf(&b, "- %s%s, %d address(es)\n", u.Name, mark, len(u.Addresses))
		}
		b.WriteString("\n")
		b.WriteString(m.formatFollowStatus())
	}
	m.say(t, strings.TrimRight(b.String(), "\n"))
	return nil
}

func formatAddresses(u model.UserRecord) string {
	if len(u.Addresses) == 0 {
		return "No saved addresses."
	}
	var b strings.Builder
	b.WriteString("Addresses:")
	for i, a := range u.Addresses {
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, a.Label, a.RawText)
	}
	return b.String()
}

func (m *Manager) formatFollowStatus() string {
	snap := m.session.Snapshot()
	if !snap.Active || snap.Destination == nil {
		return "Not following anybody."
	}
	var names []string
	for _, id := range snap.Recipients {
		if u, ok := m.dir.Get(id); ok {
			names = append(names, u.Name)
		} else {
			names = append(names, id)
		}
	}
	status := fmt.Sprintf("Following to %s, alerting %s.", snap.Destination.Label, strings.Join(names, ", "))
	if snap.LastRoute != nil {
		status += fmt.Sprintf(" Last estimate: %s, %s.",
			follow.FormatDistance(snap.LastRoute.DistanceKm), follow.FormatDuration(snap.LastRoute.EtaMinutes))
	}
	return status
}

func (m *Manager) cmdChangeName(t *turn, name string) error {
	if name == "" {
		return userErr("Usage: /chname [name]")
	}
	if err := m.dir.Rename(t.ctx, t.msg.ChatID, name); err != nil {
		return err
	}
	m.reply(t, "Okay, I will call you %s from now on.", name)
	return nil
}
