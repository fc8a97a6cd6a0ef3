package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-checks the balance of recently stored journal entries.
	TaskLedgerIntegrity = "ledger:integrity"
)

// LedgerIntegrityPayload bounds how far back the check looks.
type LedgerIntegrityPayload struct {
	Window time.Duration `json:"window"`
}

// NewLedgerIntegrityTask constructs an Asynq task. A zero window uses the job default.
func NewLedgerIntegrityTask(window time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{Window: window})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
