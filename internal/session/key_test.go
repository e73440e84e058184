package session

import "testing"

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name    string
		chatID  int64
		userID  int64
		isGroup bool
		want    Key
	}{
		{
			name:    "group chat keys by chat and user",
			chatID:  -100123,
			userID:  42,
			isGroup: true,
			want:    Key("-100123_42"),
		},
		{
			name:    "direct chat keys by chat alone",
			chatID:  42,
			userID:  42,
			isGroup: false,
			want:    Key("42"),
		},
		{
			name:    "different users in the same group get different keys",
			chatID:  -100123,
			userID:  43,
			isGroup: true,
			want:    Key("-100123_43"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyFor(tt.chatID, tt.userID, tt.isGroup); got != tt.want {
				t.Errorf("KeyFor(%d, %d, %v) = %q, want %q", tt.chatID, tt.userID, tt.isGroup, got, tt.want)
			}
		})
	}
}

func TestKeyForStableAcrossCalls(t *testing.T) {
	a := KeyFor(-100123, 42, true)
	b := KeyFor(-100123, 42, true)
	if a != b {
		t.Errorf("Same chat/user pair produced different keys: %q vs %q", a, b)
	}
}
