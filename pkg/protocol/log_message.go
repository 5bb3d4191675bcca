package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"seka-server/pkg/deck"
)

// LogMessage is a line in the table's game log
// If PlayerIDs is empty, it's a general statement, otherwise the message will be rendered like "{player} did X, Y, Z"
type LogMessage struct {
	UUID      string       `json:"uuid"`
	PlayerIDs []int64      `json:"playerIds"`
	Cards     []*deck.Card `json:"cards,omitempty"`
	Message   string       `json:"message"`
	Time      time.Time    `json:"time"`
}

// NewLogMessage returns a new LogMessage
func NewLogMessage(playerIDs []int64, format string, a ...interface{}) *LogMessage {
	return &LogMessage{
		UUID:      uuid.New().String(),
		PlayerIDs: playerIDs,
		Message:   fmt.Sprintf(format, a...),
		Time:      time.Now(),
	}
}

// SimpleLogMessage returns a log message about a single player (or nobody if playerID is 0)
func SimpleLogMessage(playerID int64, format string, a ...interface{}) *LogMessage {
	var playerIDs []int64
	if playerID > 0 {
		playerIDs = []int64{playerID}
	}

	return NewLogMessage(playerIDs, format, a...)
}

// LogResponse wraps log messages for delivery
func LogResponse(messages ...*LogMessage) *Response {
	return &Response{
		Key:  KeyLog,
		Data: messages,
	}
}
