package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xaenox/telegram-agent/internal/models"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		cmd  string
		args string
		ok   bool
	}{
		{"/start", "start", "", true},
		{"/search deploy broke", "search", "deploy broke", true},
		{"/help@conversation_agent_bot", "help", "", true},
		{"/refresh@conversation_agent_bot now", "refresh", "now", true},
		{"plain text", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestFormatMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Nothing found.", formatMessages("History:", nil))

	date := time.Date(2024, 11, 2, 10, 30, 0, 0, time.UTC)
	got := formatMessages("History:", []*models.Message{
		{UserID: 7, Date: date, Text: "first"},
		{UserID: 8, Date: date.Add(time.Minute), Text: "second"},
	})
	assert.Equal(t, "History:\n[2024-11-02 10:30] 7: first\n[2024-11-02 10:31] 8: second", got)
}
