package bot

import (
	"context"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/services"
	"mentor-marketplace/internal/testutil"
	"sync"
	"testing"
	"time"
)

const adminID = 42

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func newConsole(t *testing.T) (*Console, *testutil.Env, *fakeSender) {
	env := testutil.NewEnv(t)
	out := &fakeSender{}
	return &Console{
		Out:     out,
		AdminID: adminID,
		DB:      env.DB,
		Users:   services.NewUserService(env.Deps),
		Now:     env.Clock.Now,
	}, env, out
}

func command(from int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestExecuteUserLookup(t *testing.T) {
	c, env, _ := newConsole(t)
	user := env.User(t, "someone@example.com")
	ctx := context.Background()

	tests := []struct {
		desc string
		args string
		want string
	}{
		{"by email", "Someone@Example.com", "someone@example.com"},
		{"by id", user.ID, "id: " + user.ID},
	}
	for _, tt := range tests {
		out, err := c.Execute(ctx, "user", tt.args)
		require.NoError(t, err, tt.desc)
		assert.Contains(t, out, tt.want, tt.desc)
	}

	_, err := c.Execute(ctx, "user", "nobody@example.com")
	assert.EqualError(t, err, "user not found")

	out, err := c.Execute(ctx, "user", "")
	require.NoError(t, err)
	assert.Contains(t, out, "usage")
}

func TestExecuteBlockAndUnblock(t *testing.T) {
	c, env, _ := newConsole(t)
	user := env.User(t, "someone@example.com")
	ctx := context.Background()

	out, err := c.Execute(ctx, "block", user.Email)
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com is now "+db.UserStatusBlocked, out)
	assert.Equal(t, db.UserStatusBlocked, testutil.Reload[db.User](t, env.DB, user.ID).Status)

	_, err = c.Execute(ctx, "unblock", user.ID)
	require.NoError(t, err)
	assert.Equal(t, db.UserStatusActive, testutil.Reload[db.User](t, env.DB, user.ID).Status)
}

func TestExecuteStatsAndPayments(t *testing.T) {
	c, env, _ := newConsole(t)
	user := env.User(t, "someone@example.com")
	require.NoError(t, env.DB.Create(&db.Payment{UserID: user.ID, Amount: 250, Currency: "usd",
		Purpose: db.PurposeSubscription, Status: db.PaymentSuccess}).Error)
	env.Clock.Advance(time.Minute)
	ctx := context.Background()

	out, err := c.Execute(ctx, "stats", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Users: 1")
	assert.Contains(t, out, "total 250")

	out, err = c.Execute(ctx, "payments", "")
	require.NoError(t, err)
	assert.Contains(t, out, ": 250\n")
	assert.Contains(t, out, "subscription 250 usd SUCCESS")

	_, err = c.Execute(ctx, "payments", "2025-13-01 2025-03-02")
	assert.EqualError(t, err, "invalid from date")

	out, err = c.Execute(ctx, "nope", "")
	require.NoError(t, err)
	assert.Equal(t, "unknown command, see /help", out)
}

func TestHandleUpdateIgnoresStrangers(t *testing.T) {
	c, _, out := newConsole(t)

	c.HandleUpdate(context.Background(), command(7, "/stats"))
	assert.Empty(t, out.texts())

	c.HandleUpdate(context.Background(), command(adminID, "/help"))
	texts := out.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, helpText, texts[0])

	c.HandleUpdate(context.Background(), command(adminID, "/backup"))
	texts = out.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "backups are not configured", texts[1])
}
