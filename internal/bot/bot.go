package bot

import (
	"context"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"mentor-marketplace/internal/admin"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/services"
	"time"
)

// Sender is the part of the Telegram client the console uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Console answers operator commands sent to the bot from the admin chat.
type Console struct {
	API     *tgbotapi.BotAPI
	Out     Sender
	AdminID int64
	DB      *gorm.DB
	Users   *services.UserService
	Health  *services.HealthChecker
	Backups *admin.Backups
	Now     func() time.Time
}

func (c *Console) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Console) sender() Sender {
	if c.Out != nil {
		return c.Out
	}
	return c.API
}

// Run long-polls updates until ctx is done.
func (c *Console) Run(ctx context.Context) {
	logger.Info("admin console started", zap.String("bot", c.API.Self.UserName))
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.API.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			c.API.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			c.HandleUpdate(ctx, update)
		}
	}
}
