package commands

import (
	"testing"

	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

func TestDescribeChannel(t *testing.T) {
	tests := []struct {
		ch   telegram.Channel
		want string
	}{
		{
			ch:   telegram.Channel{ID: -1001234567890, Title: "News", Username: "news_feed", Broadcast: true},
			want: "-1001234567890 | channel | News | @news_feed",
		},
		{
			ch:   telegram.Channel{ID: -1009876543210, Title: "Chat", Protected: true},
			want: "-1009876543210 | supergroup | Chat | protected",
		},
	}
	for _, tt := range tests {
		if got := describeChannel(tt.ch); got != tt.want {
			t.Errorf("describeChannel() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-1", "x"} {
		if _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) should fail", bad)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"worker"},
		{"channels"},
		{"backfill"},
		{"logs", "export"},
		{"user", "create"},
		{"user", "list"},
		{"config", "init"},
		{"replace", "add"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd == rootCmd {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}
}
