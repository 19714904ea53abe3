package queue

import "testing"

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, _, err := Open("kafka", "", "q", 1, nil); err == nil {
		t.Fatal("ожидали ошибку для неизвестной очереди")
	}
}

func TestOpenRedisNeedsClient(t *testing.T) {
	if _, _, err := Open("redis", "", "q", 1, nil); err == nil {
		t.Fatal("ожидали ошибку без клиента Redis")
	}
}

func TestOpenRabbitNeedsURL(t *testing.T) {
	if _, _, err := Open("rabbitmq", "", "q", 1, nil); err == nil {
		t.Fatal("ожидали ошибку без RABBITMQ_URL")
	}
}
