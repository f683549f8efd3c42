package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrade/futuresbot/internal/events"
)

func TestNew_ReturnsNilWhenTokenEmpty(t *testing.T) {
	tg := New("", filepath.Join(t.TempDir(), "chat_id"), zerolog.Nop())
	assert.Nil(t, tg)
}

func TestNilTelegram_MethodsAreNoops(t *testing.T) {
	var tg *Telegram
	bus := events.New(zerolog.Nop())

	assert.NotPanics(t, func() { tg.SubscribeAll(bus) })
	assert.NotPanics(t, func() { tg.Notify("hello") })
	assert.NotPanics(t, func() { tg.StartCommandListener(nil, nil, nil) })
}

func TestTelegramNotify_NoopWhenBotUnset(t *testing.T) {
	tg := &Telegram{chatIDFile: filepath.Join(t.TempDir(), "chat_id"), chatID: 12345}
	assert.NotPanics(t, func() { tg.Notify("hello") })
}

func TestLoadChatID_ReturnsZeroWhenFileMissing(t *testing.T) {
	tg := &Telegram{chatIDFile: filepath.Join(t.TempDir(), "does-not-exist")}
	assert.Equal(t, int64(0), tg.loadChatID())
}

func TestLoadChatID_ReturnsZeroOnGarbageContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_id")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0o644))
	tg := &Telegram{chatIDFile: path}
	assert.Equal(t, int64(0), tg.loadChatID())
}

func TestSaveAndLoadChatID_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_id")
	tg := &Telegram{chatIDFile: path, log: zerolog.Nop()}

	tg.saveChatID(987654321)

	reloaded := &Telegram{chatIDFile: path}
	assert.Equal(t, int64(987654321), reloaded.loadChatID())
}
