package bot

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"mentor-marketplace/internal/admin"
	"mentor-marketplace/internal/db"
	"mentor-marketplace/internal/logger"
	"mentor-marketplace/internal/services"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const helpText = `Commands:
/stats - users, subscriptions and revenue
/health - dependency status
/payments [YYYY-MM-DD YYYY-MM-DD] - payment summary
/user <id|email> - account details
/block <id|email>, /unblock <id|email>
/backup - dump the database`

const maxListedPayments = 20

// HandleUpdate ignores everyone except the configured admin.
func (c *Console) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer logger.NotifyOnPanic("bot.HandleUpdate")
	if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.From.ID != c.AdminID {
		logger.Warn("console command from non-admin", zap.Int64("telegram_id", update.Message.From.ID))
		return
	}
	chatID := update.Message.Chat.ID
	cmd := update.Message.Command()
	args := update.Message.CommandArguments()
	logger.LogAdminAction(strconv.FormatInt(c.AdminID, 10), cmd, args)

	if cmd == "backup" {
		c.backup(ctx, chatID)
		return
	}
	text, err := c.Execute(ctx, cmd, args)
	if err != nil {
		text = "Error: " + err.Error()
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if cmd == "start" || cmd == "help" {
		msg.ReplyMarkup = adminKeyboard()
	}
	if _, err := c.sender().Send(msg); err != nil {
		logger.Warn("console reply failed", zap.Error(err))
	}
}

// Execute runs a text command and returns the reply.
func (c *Console) Execute(ctx context.Context, cmd, args string) (string, error) {
	conn := c.DB.WithContext(ctx)
	fields := strings.Fields(args)
	switch cmd {
	case "start", "help":
		return helpText, nil
	case "stats":
		st := admin.CollectStats(conn, c.now())
		return fmt.Sprintf("Users: %d (mentors %d, premium %d)\nActive subscriptions: %d\nNew in 24h: %d users, %d bookings\nRevenue: today %d, 30 days %d, total %d",
			st.Users, st.Mentors, st.PremiumUsers, st.ActiveSubscriptions,
			st.NewUsers24h, st.NewBookings24h,
			st.RevenueToday, st.RevenueMonth, st.RevenueTotal), nil
	case "health":
		if c.Health == nil {
			return "health checks are not configured", nil
		}
		var sb strings.Builder
		for _, s := range c.Health.Statuses() {
			sb.WriteString(fmt.Sprintf("%s: %s", s.Name, s.Status))
			if s.Error != "" {
				sb.WriteString(" (" + s.Error + ")")
			}
			sb.WriteString("\n")
		}
		if sb.Len() == 0 {
			return "no probes have run yet", nil
		}
		return sb.String(), nil
	case "payments":
		return c.payments(conn, fields)
	case "user":
		if len(fields) < 1 {
			return "usage: /user <id|email>", nil
		}
		user, err := db.FindUser(conn, fields[0])
		if err != nil {
			return "", lookupError(err)
		}
		expires := "-"
		if user.PremiumExpires != nil {
			expires = user.PremiumExpires.Format("2006-01-02 15:04")
		}
		return fmt.Sprintf("%s <%s>\nid: %s\nrole: %s, status: %s\npremium: %t until %s\nfree bookings left: %d",
			user.Name, user.Email, user.ID, user.Role, user.Status, user.IsPremium, expires, user.FreeBookingsLeft), nil
	case "block", "unblock":
		if len(fields) < 1 {
			return "usage: /" + cmd + " <id|email>", nil
		}
		user, err := db.FindUser(conn, fields[0])
		if err != nil {
			return "", lookupError(err)
		}
		status := db.UserStatusBlocked
		if cmd == "unblock" {
			status = db.UserStatusActive
		}
		actor := services.Actor{ID: "telegram:" + strconv.FormatInt(c.AdminID, 10), Role: db.RoleAdmin}
		if _, err := c.Users.UpdateStatus(ctx, actor, user.ID, status); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is now %s", user.Email, status), nil
	}
	return "unknown command, see /help", nil
}

func (c *Console) payments(conn *gorm.DB, fields []string) (string, error) {
	now := c.now()
	from, to := now.AddDate(0, 0, -30), now
	if len(fields) == 2 {
		var err error
		if from, err = time.Parse("2006-01-02", fields[0]); err != nil {
			return "", fmt.Errorf("invalid from date")
		}
		if to, err = time.Parse("2006-01-02", fields[1]); err != nil {
			return "", fmt.Errorf("invalid to date")
		}
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	pays := db.GetPayments(conn, from, to, 0, maxListedPayments)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Successful total %s..%s: %d\n", from.Format("2006-01-02"), to.Format("2006-01-02"),
		db.SumPayments(conn, from, to)))
	for _, p := range pays {
		sb.WriteString(fmt.Sprintf("%s %s %d %s %s\n", p.CreatedAt.Format("02.01 15:04"), p.Purpose, p.Amount, p.Currency, p.Status))
	}
	return sb.String(), nil
}

func (c *Console) backup(ctx context.Context, chatID int64) {
	if c.Backups == nil {
		_, _ = c.sender().Send(tgbotapi.NewMessage(chatID, "backups are not configured"))
		return
	}
	filename, err := c.Backups.Dump(ctx, "backup")
	if err != nil {
		logger.Error("console backup failed", zap.Error(err))
		_, _ = c.sender().Send(tgbotapi.NewMessage(chatID, "Backup failed: "+err.Error()))
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filename))
	doc.Caption = "Database backup " + filepath.Base(filename)
	if _, err := c.sender().Send(doc); err != nil {
		logger.Warn("backup delivery failed", zap.Error(err))
	}
}

func lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New("user not found")
	}
	return err
}
