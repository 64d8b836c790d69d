package logger

import (
	"fmt"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"sync"
)

var (
	botInstance *tgbotapi.BotAPI
	adminChatID int64
	once        sync.Once
)

// InitNotifier enables critical alerts to the admin chat. Without a token
// alerts are only logged.
func InitNotifier(token string, adminID int64) error {
	if token == "" || adminID == 0 {
		return nil
	}
	var err error
	once.Do(func() {
		var bot *tgbotapi.BotAPI
		bot, err = tgbotapi.NewBotAPI(token)
		if err != nil {
			return
		}
		botInstance = bot
		adminChatID = adminID
	})
	return err
}

// NotifyAdmin logs the alert and forwards it to the admin chat.
func NotifyAdmin(msg string) {
	log.Warn("admin_alert", zap.String("message", msg))
	if botInstance == nil || adminChatID == 0 {
		return
	}
	if _, err := botInstance.Send(tgbotapi.NewMessage(adminChatID, "[ALERT] "+msg)); err != nil {
		log.Error("admin alert delivery failed", zap.Error(err))
	}
}

// NotifyOnPanic recovers, logs and alerts. Use with defer.
func NotifyOnPanic(context string) {
	if r := recover(); r != nil {
		log.Error("panic recovered", zap.String("context", context), zap.Any("panic", r))
		NotifyAdmin("Panic in " + context + ": " + toString(r))
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// SendAdminDocument delivers a file to the admin chat when the notifier is enabled.
func SendAdminDocument(path, caption string) error {
	if botInstance == nil || adminChatID == 0 {
		return nil
	}
	doc := tgbotapi.NewDocument(adminChatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	_, err := botInstance.Send(doc)
	return err
}

// Bot returns the notifier's bot client, nil when alerts are disabled.
func Bot() *tgbotapi.BotAPI {
	return botInstance
}
