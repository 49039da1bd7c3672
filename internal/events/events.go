package events

import (
	"time"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

// Type identifies an event emitted by a running job.
type Type string

const (
	TypeLog      Type = "log"
	TypeProgress Type = "progress"
	TypePartial  Type = "partial"
	TypeStopped  Type = "stopped"
	TypeFinished Type = "finished"
	TypeError    Type = "error"
)

// Terminal reports whether no further events follow an event of this type.
func (t Type) Terminal() bool {
	return t == TypeStopped || t == TypeFinished || t == TypeError
}

// Event is one outward notification of a job.
type Event struct {
	JobID    string                 `json:"job_id"`
	Type     Type                   `json:"type"`
	Time     time.Time              `json:"time"`
	Level    string                 `json:"level,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Progress int                    `json:"progress,omitempty"`
	Record   *models.ProductRecord  `json:"record,omitempty"`
	Records  []models.ProductRecord `json:"records,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func Log(jobID, level, message string) Event {
	return Event{JobID: jobID, Type: TypeLog, Time: time.Now(), Level: level, Message: message}
}

func Progress(jobID string, percent int) Event {
	return Event{JobID: jobID, Type: TypeProgress, Time: time.Now(), Progress: percent}
}

// Partial carries a copy of rec so later mutation by the producer is not
// visible to consumers.
func Partial(jobID string, rec models.ProductRecord) Event {
	return Event{JobID: jobID, Type: TypePartial, Time: time.Now(), Record: &rec}
}

func Stopped(jobID string) Event {
	return Event{JobID: jobID, Type: TypeStopped, Time: time.Now()}
}

func Finished(jobID string, records []models.ProductRecord) Event {
	out := make([]models.ProductRecord, len(records))
	copy(out, records)
	return Event{JobID: jobID, Type: TypeFinished, Time: time.Now(), Progress: 100, Records: out}
}

func Failed(jobID string, err error) Event {
	return Event{JobID: jobID, Type: TypeError, Time: time.Now(), Error: err.Error()}
}
