package domain

// ChatState задаёт состояние диалога добавления товара.
type ChatState string

const (
	ChatStateNone                        ChatState = "none"
	ChatStateAwaitingURL                 ChatState = "awaiting_url"
	ChatStateAwaitingNameChoice          ChatState = "awaiting_name_choice"
	ChatStateAwaitingName                ChatState = "awaiting_name"
	ChatStateAwaitingTargetPrice         ChatState = "awaiting_target_price"
	ChatStateAwaitingNotificationMethods ChatState = "awaiting_notification_methods"
	ChatStateAwaitingCheckFrequency      ChatState = "awaiting_check_frequency"
	ChatStateAwaitingRemoveID            ChatState = "awaiting_remove_id"
)

// ChatSession хранит состояние диалога и собранные поля товара.
type ChatSession struct {
	UserID int64             `json:"user_id"`
	State  ChatState         `json:"state"`
	Data   map[string]string `json:"data,omitempty"`
}

// Active сообщает, находится ли пользователь внутри сценария.
func (s ChatSession) Active() bool {
	return s.State != "" && s.State != ChatStateNone
}

// Reset очищает состояние и собранные данные.
func (s *ChatSession) Reset() {
	s.State = ChatStateNone
	s.Data = nil
}

// Set сохраняет значение в сессии.
func (s *ChatSession) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}
