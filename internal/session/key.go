package session

import "strconv"

// Key identifies all per-conversation state. The same logical chat/user pair
// must always resolve to the same Key, so this is the only place a key is
// ever derived.
type Key string

// KeyFor canonicalizes a chat/user pair into a session key. Group chats get
// per-user image context; direct chats are keyed by the chat alone.
func KeyFor(chatID, userID int64, isGroup bool) Key {
	if isGroup {
		return Key(strconv.FormatInt(chatID, 10) + "_" + strconv.FormatInt(userID, 10))
	}
	return Key(strconv.FormatInt(chatID, 10))
}
