// internal/channel/event.go
package channel

// Kind names a group event. Sessions dispatch on it with a switch; kinds a
// session does not handle are dropped.
type Kind string

const (
	// Lobby events.
	KindUserList       Kind = "lobby.user_list"
	KindInviteState    Kind = "lobby.invite_state"
	KindInviteAccepted Kind = "lobby.invite_accepted"
	KindInviteDeclined Kind = "lobby.invite_declined"
	KindChatNotify     Kind = "lobby.chat_notify"
	KindInGame         Kind = "lobby.in_game"

	// Shared between lobby 1:1 chats and game chats.
	KindChatHistory Kind = "chat.history"

	// Match events.
	KindGameUpdate Kind = "game.update"
	KindEnemyLeft  Kind = "game.enemy_left"
	KindNewGame    Kind = "game.new_game"
)

// Event is the unit of group delivery. Only the fields relevant to the Kind
// are populated; the zero values marshal away.
type Event struct {
	Kind   Kind   `json:"kind"`
	From   string `json:"from,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
	GameID string `json:"game_id,omitempty"`
}
