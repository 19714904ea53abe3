package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, если запись не найдена или принадлежит другому пользователю.
	ErrNotFound = errors.New("запись не найдена")
	// ErrAlreadyTracked возвращается при повторном добавлении той же ссылки.
	ErrAlreadyTracked = errors.New("товар уже отслеживается")
	// ErrAccountAlreadyLinked возвращается, если аккаунт уже привязан к другому чату.
	ErrAccountAlreadyLinked = errors.New("аккаунт уже привязан к telegram")
	// ErrChatAlreadyLinked возвращается, если чат уже привязан к другому аккаунту.
	ErrChatAlreadyLinked = errors.New("чат уже привязан к другому аккаунту")
)

// FetchError описывает ошибку получения данных о товаре.
type FetchError struct {
	Code    string
	Message string
	Status  int
	Details string
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	return msg
}

// NewFetchError создаёт ошибку с машинным кодом.
func NewFetchError(code, details string) *FetchError {
	return &FetchError{Code: code, Details: details}
}

// FetchErrorCode извлекает код ошибки получения данных.
func FetchErrorCode(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Snapshot содержит название и сырую цену до нормализации.
type Snapshot struct {
	Name     string
	RawPrice any
}
