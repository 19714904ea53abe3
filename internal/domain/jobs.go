package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCheckJob содержит параметры задачи проверки цены.
type PriceCheckJob struct {
	ID               string           `json:"job_id,omitempty"`
	ProductID        int64            `json:"product_id" validate:"gt=0"`
	MockScenario     string           `json:"mock_scenario,omitempty" validate:"omitempty,max=64"`
	MockTargetPrice  *decimal.Decimal `json:"mock_target_price,omitempty"`
	MockCurrentPrice *decimal.Decimal `json:"mock_current_price,omitempty"`
	Locale           string           `json:"locale,omitempty" validate:"omitempty,max=16"`
	RequestedAt      time.Time        `json:"requested_at"`
	Cause            PriceCheckCause  `json:"cause,omitempty"`
}

// PriceCheckCause описывает источник задачи.
type PriceCheckCause string

const (
	// CheckCauseScheduled означает, что задачу поставил планировщик.
	CheckCauseScheduled PriceCheckCause = "scheduled"
	// CheckCauseCreated означает первую проверку после добавления товара.
	CheckCauseCreated PriceCheckCause = "created"
	// CheckCauseManual означает ручной запуск через pricectl.
	CheckCauseManual PriceCheckCause = "manual"
)

// IsMock сообщает, что задача выполняется на тестовых данных.
func (j PriceCheckJob) IsMock() bool {
	return j.MockScenario != ""
}

// CheckQueue описывает очередь задач проверки цены.
type CheckQueue interface {
	Enqueue(ctx context.Context, job PriceCheckJob) error
	Receive(ctx context.Context) (PriceCheckJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
