package model

// AddressRecord is a saved, geocoded address of a user.
type AddressRecord struct {
	Label      string     `json:"label"`
	RawText    string     `json:"rawText"`
	Coordinate Coordinate `json:"coordinate"`
}

// UserRecord is a chat that has registered with the bot.
type UserRecord struct {
	ChatID    string          `json:"chatID"`
	Name      string          `json:"name"`
	Verified  bool            `json:"verified"`
	Addresses []AddressRecord `json:"addresses"`
}

func (u UserRecord) Clone() UserRecord {
	out := u
	if u.Addresses != nil {
		out.Addresses = make([]AddressRecord, len(u.Addresses))
		copy(out.Addresses, u.Addresses)
	}
	return out
}

// DirectoryDocument is the persisted state: the owner chat and every registered user.
type DirectoryDocument struct {
	OwnerChatID string                `json:"ownerChatID"`
	Users       map[string]UserRecord `json:"users"`
}

func NewDirectoryDocument() DirectoryDocument {
	return DirectoryDocument{Users: make(map[string]UserRecord)}
}

// Clone deep-copies the document so a mutation can be prepared without touching
// the live copy.
func (d DirectoryDocument) Clone() DirectoryDocument {
	out := DirectoryDocument{
		OwnerChatID: d.OwnerChatID,
		Users:       make(map[string]UserRecord, len(d.Users)),
	}
	for id, u := range d.Users {
		out.Users[id] = u.Clone()
	}
	return out
}

// DestinationCandidate is one address a destination name may refer to.
type DestinationCandidate struct {
	OwnerChatID string        `json:"owner_chat_id"`
	OwnerName   string        `json:"owner_name"`
	Address     AddressRecord `json:"address"`
}
