package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/model"
)

var enRoutePattern = regexp.MustCompile(`(?i)^en.?route to\s+(.+?)(?:\s+alert\s+(.+))?$`)

// parseEnRoute splits "en route to X alert Y, Z" into X and [Y Z].
func parseEnRoute(text string) (string, []string, bool) {
	match := enRoutePattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return "", nil, false
	}
	dest := strings.TrimSpace(match[1])
	var alertees []string
	for _, name := range strings.Split(match[2], ",") {
		if name = strings.TrimSpace(name); name != "" {
			alertees = append(alertees, name)
		}
	}
	return dest, alertees, dest != ""
}

func (m *Manager) onEnRoute(t *turn, destName string, alerteeNames []string) error {
	if err := m.requireOwner(t); err != nil {
		return err
	}
	if !m.cfg.FollowEnabled {
		return userErr("Following is unavailable, the position source is not configured.")
	}
	if !m.routingAvailable() {
		return userErr("Routing is currently unavailable.")
	}

	// Alertees are checked first so a bad name changes nothing.
	alertees := make([]string, 0, len(alerteeNames))
	for _, name := range alerteeNames {
		u, err := m.lookupOne(name, true)
		if err != nil {
			return err
		}
		alertees = append(alertees, u.ChatID)
	}

	candidates, err := m.resolveDestination(destName)
	if err != nil {
		return err
	}
	if len(candidates) == 1 {
		return m.startFollow(t, candidates[0], alertees)
	}

	if err := t.to(evAskChoice); err != nil {
		return err
	}
	t.conv.Scratch.Candidates = candidates
	t.conv.Scratch.Alertees = alertees

	var b strings.Builder
	b.WriteString("There are several addresses called \"" + destName + "\". Which one do you mean?")
	for i, c := range candidates {
		b.WriteString("\n" + strconv.Itoa(i+1) + ". " + c.OwnerName + ": " + c.Address.RawText)
	}
	m.say(t, b.String())
	return nil
}

// resolveDestination looks the name up as a user first and as an address
// label second. Only label lookups may return several candidates.
func (m *Manager) resolveDestination(name string) ([]model.DestinationCandidate, error) {
	users := m.dir.FindByName(name, true)
	switch {
	case len(users) > 1:
		return nil, userErr("The name %q is ambiguous, %d users are called that.", name, len(users))
	case len(users) == 1:
		u := users[0]
		if len(u.Addresses) != 1 {
			return nil, userErr("%s has %d saved addresses, I need exactly one. Use the address label instead.", u.Name, len(u.Addresses))
		}
		return []model.DestinationCandidate{{OwnerChatID: u.ChatID, OwnerName: u.Name, Address: u.Addresses[0]}}, nil
	}

	candidates := m.dir.FindByAddressLabel(name)
	if len(candidates) == 0 {
		return nil, userErr("I don't know any user or address called %q.", name)
	}
	return candidates, nil
}

func (m *Manager) onDestinationChoice(t *turn) error {
	candidates := t.conv.Scratch.Candidates
	choice, err := strconv.Atoi(t.text)
	if err != nil || choice < 1 || choice > len(candidates) {
		return userErr("Please answer with a number from 1 to %d, or /quit.", len(candidates))
	}
	return m.startFollow(t, candidates[choice-1], t.conv.Scratch.Alertees)
}

func (m *Manager) startFollow(t *turn, c model.DestinationCandidate, alertees []string) error {
	recipients := append([]string{c.OwnerChatID}, alertees...)
	dest := follow.Destination{Label: c.Address.Label, OwnerName: c.OwnerName, Coordinate: c.Address.Coordinate}
	if err := m.session.Start(dest, recipients); err != nil {
		return err
	}
	if err := t.to(evDone); err != nil {
		return err
	}

	snap := m.session.Snapshot()
	names := make([]string, 0, len(snap.Recipients))
	for _, id := range snap.Recipients {
		if u, ok := m.dir.Get(id); ok {
			names = append(names, u.Name)
		}
	}
	m.reply(t, "Following to %s of %s. I will alert %s.", dest.Label, c.OwnerName, strings.Join(names, ", "))
	return nil
}
