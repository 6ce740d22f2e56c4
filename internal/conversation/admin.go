package conversation

func (m *Manager) cmdVerify(t *turn, name string) error {
	if err := m.requireOwner(t); err != nil {
		return err
	}
	if name == "" {
		return userErr("Usage: /verify [name]")
	}
	target, err := m.lookupOne(name, false)
	if err != nil {
		return err
	}
	if target.Verified {
		m.reply(t, "%s is already verified.", target.Name)
		return nil
	}
	if err := m.dir.Verify(t.ctx, target.ChatID); err != nil {
		return err
	}
	m.logger.Info(moduleName, "User verified", map[string]interface{}{"chat_id": target.ChatID})
	m.reply(t, "%s is now verified.", target.Name)
	m.sink.Send(t.ctx, target.ChatID, "You have been verified. You can now save addresses with /addaddress.")
	return nil
}

func (m *Manager) cmdRemoveUser(t *turn, name string) error {
	if err := m.requireOwner(t); err != nil {
		return err
	}
	if name == "" {
		return userErr("Usage: /rmuser [name]")
	}
	target, err := m.lookupOne(name, false)
	if err != nil {
		return err
	}
	if err := m.dir.Remove(t.ctx, t.msg.ChatID, target.ChatID); err != nil {
		return err
	}
	m.convs.Delete(target.ChatID)
	m.logger.Info(moduleName, "User removed", map[string]interface{}{"chat_id": target.ChatID})
	m.reply(t, "Deleted %s.", target.Name)
	return nil
}
