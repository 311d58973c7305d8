package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HybieGee/Rust-Skin-Bot/internal/domain"
	"github.com/HybieGee/Rust-Skin-Bot/internal/monitor"
	"github.com/HybieGee/Rust-Skin-Bot/internal/store"
)

const (
	longPollSeconds = 25
	errorBackoff    = 5 * time.Second
)

const helpText = `🎯 Rust Skin Sniper

Commands:
/monitor - start watching for first-time creator skins
/stop - stop watching
/status - current settings and progress
/settoken <token> - save your Steam session token (needed for live buys)
/maxprice <dollars> - price ceiling per skin
/maxage <days> - how old a skin may be
/autobuy on|off - attempt purchases automatically
/testmode on|off - simulate purchases instead of real ones
/purchases - recent opportunities
/reset - clear progress and start a fresh run`

// monitorControl is the slice of the supervisor the bot drives.
type monitorControl interface {
	Start(ctx context.Context, userID int64) error
	Stop(userID int64) bool
	IsRunning(userID int64) bool
}

// Bot runs the Telegram command loop. Each private chat maps to one user
// session; the chat id is the user id.
type Bot struct {
	api      *Client
	repo     store.Repository
	control  monitorControl
	defaults domain.SessionDefaults
}

// NewBot wires the command loop.
func NewBot(api *Client, repo store.Repository, control monitorControl, defaults domain.SessionDefaults) *Bot {
	return &Bot{
		api:      api,
		repo:     repo,
		control:  control,
		defaults: defaults,
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	slog.Info("Telegram command loop started")
	var offset int64

	for {
		updates, err := b.api.GetUpdates(ctx, offset, longPollSeconds)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Telegram command loop stopped")
				return
			}
			slog.Warn("Telegram getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				slog.Info("Telegram command loop stopped")
				return
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, u.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	reply := b.dispatch(ctx, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}
	if err := b.api.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		slog.Warn("Failed to send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

// dispatch resolves one incoming message to a reply. Non-commands are
// ignored so group chatter does not trigger the bot.
func (b *Bot) dispatch(ctx context.Context, userID int64, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}

	cmd := strings.ToLower(fields[0])
	// Commands may arrive as /cmd@botname in groups.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	slog.Debug("Command received", "user_id", userID, "command", cmd)

	switch cmd {
	case "/start":
		return b.cmdStart(ctx, userID)
	case "/help":
		return helpText
	case "/status":
		return b.cmdStatus(ctx, userID)
	case "/monitor":
		return b.cmdMonitor(ctx, userID)
	case "/stop":
		return b.cmdStop(userID)
	case "/settoken":
		return b.cmdSetToken(ctx, userID, args)
	case "/maxprice":
		return b.cmdMaxPrice(ctx, userID, args)
	case "/maxage":
		return b.cmdMaxAge(ctx, userID, args)
	case "/autobuy":
		return b.cmdAutoBuy(ctx, userID, args)
	case "/testmode":
		return b.cmdTestMode(ctx, userID, args)
	case "/reset":
		return b.cmdReset(ctx, userID)
	case "/purchases":
		return b.cmdPurchases(ctx, userID)
	default:
		return "Unknown command. Try /help."
	}
}

const genericErrorReply = "Something went wrong, please try again."

func (b *Bot) ensureSession(ctx context.Context, userID int64) (*domain.UserSession, error) {
	return b.repo.CreateSession(ctx, userID, b.defaults)
}

func (b *Bot) cmdStart(ctx context.Context, userID int64) string {
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	return "Welcome! I watch the Rust marketplace for skins from first-time creators.\n\n" + helpText
}

func (b *Bot) cmdStatus(ctx context.Context, userID int64) string {
	sess, err := b.ensureSession(ctx, userID)
	if err != nil {
		slog.Error("Failed to load session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	screened, err := b.repo.ProcessedCount(ctx, userID)
	if err != nil {
		slog.Error("Failed to count processed items", "user_id", userID, "error", err)
		return genericErrorReply
	}

	mode := "live"
	if sess.TestMode {
		mode = "test (simulated purchases)"
	}
	token := "not set"
	if sess.HasToken() {
		token = "saved"
	}

	return fmt.Sprintf(`📊 Status
Monitoring: %s
Mode: %s
Auto-purchase: %s
Max price: %s
Max item age: %d days
Progress: %d/%d
Items screened: %d
Steam token: %s`,
		onOff(b.control.IsRunning(userID)),
		mode,
		onOff(sess.AutoPurchase),
		formatCents(sess.MaxPriceCents),
		sess.MaxItemAgeDays,
		sess.FoundCount, sess.MaxOpportunities,
		screened,
		token)
}

func (b *Bot) cmdMonitor(ctx context.Context, userID int64) string {
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}

	err := b.control.Start(ctx, userID)
	switch {
	case err == nil:
		return "🔍 Monitoring started. I will message you when a first-time creator skin shows up."
	case errors.Is(err, monitor.ErrAlreadyMonitoring):
		return "Monitoring is already running. Use /stop first if you want to restart."
	case errors.Is(err, monitor.ErrQuotaExhausted):
		return "Your opportunity quota is filled. Use /reset to start a fresh run."
	case errors.Is(err, monitor.ErrTokenRequired):
		return "Live mode needs a Steam token. Send /settoken <token>, or switch to /testmode on."
	default:
		slog.Error("Failed to start monitoring", "user_id", userID, "error", err)
		return genericErrorReply
	}
}

func (b *Bot) cmdStop(userID int64) string {
	if b.control.Stop(userID) {
		return "🛑 Monitoring stopped."
	}
	return "Monitoring is not running."
}

func (b *Bot) cmdSetToken(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /settoken <steamLoginSecure value>"
	}
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if err := b.repo.SetSteamToken(ctx, userID, args[0]); err != nil {
		slog.Error("Failed to save token", "user_id", userID, "error", err)
		return genericErrorReply
	}
	return "🔐 Token saved. Consider deleting your message with the token."
}

func (b *Bot) cmdMaxPrice(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /maxprice <dollars>, e.g. /maxprice 10"
	}
	cents, err := parseDollarsToCents(args[0])
	if err != nil {
		return "That does not look like a price. Example: /maxprice 7.50"
	}
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if err := b.repo.SetMaxPriceCents(ctx, userID, cents); err != nil {
		slog.Error("Failed to set max price", "user_id", userID, "error", err)
		return genericErrorReply
	}
	return "💵 Max price set to " + formatCents(cents) + "."
}

func (b *Bot) cmdMaxAge(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /maxage <days>, e.g. /maxage 3"
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 1 || days > 30 {
		return "Give me a number of days between 1 and 30."
	}
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if err := b.repo.SetMaxItemAgeDays(ctx, userID, days); err != nil {
		slog.Error("Failed to set max age", "user_id", userID, "error", err)
		return genericErrorReply
	}
	return fmt.Sprintf("📅 Max item age set to %d days.", days)
}

func (b *Bot) cmdAutoBuy(ctx context.Context, userID int64, args []string) string {
	enabled, err := parseOnOff(args)
	if err != nil {
		return "Usage: /autobuy on|off"
	}
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if err := b.repo.SetAutoPurchase(ctx, userID, enabled); err != nil {
		slog.Error("Failed to set auto-purchase", "user_id", userID, "error", err)
		return genericErrorReply
	}
	return "🛒 Auto-purchase " + onOff(enabled) + "."
}

func (b *Bot) cmdTestMode(ctx context.Context, userID int64, args []string) string {
	enabled, err := parseOnOff(args)
	if err != nil {
		return "Usage: /testmode on|off"
	}
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if err := b.repo.SetTestMode(ctx, userID, enabled); err != nil {
		slog.Error("Failed to set test mode", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if enabled {
		return "🧪 Test mode on: purchases will be simulated."
	}
	return "⚡ Test mode off: purchases will be real. Make sure your token is set."
}

func (b *Bot) cmdReset(ctx context.Context, userID int64) string {
	if _, err := b.ensureSession(ctx, userID); err != nil {
		slog.Error("Failed to create session", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if b.control.IsRunning(userID) {
		return "Stop monitoring first with /stop, then /reset."
	}
	if err := b.repo.ResetProgress(ctx, userID); err != nil {
		slog.Error("Failed to reset progress", "user_id", userID, "error", err)
		return genericErrorReply
	}
	return "♻️ Progress reset. Found counter is back to zero and seen items are cleared."
}

func (b *Bot) cmdPurchases(ctx context.Context, userID int64) string {
	recs, err := b.repo.ListOpportunities(ctx, userID, 10)
	if err != nil {
		slog.Error("Failed to list opportunities", "user_id", userID, "error", err)
		return genericErrorReply
	}
	if len(recs) == 0 {
		return "No opportunities recorded yet."
	}

	var sb strings.Builder
	sb.WriteString("🧾 Recent opportunities:\n")
	for _, rec := range recs {
		marker := "⏭"
		if rec.Succeeded {
			marker = "✅"
		} else if rec.Attempted {
			marker = "❌"
		}
		price := "no listing"
		if rec.PriceCents > 0 {
			price = formatCents(rec.PriceCents)
		}
		fmt.Fprintf(&sb, "%s %s by %s - %s", marker, rec.ItemName, rec.CreatorName, price)
		if rec.Detail != "" {
			fmt.Fprintf(&sb, " (%s)", rec.Detail)
		}
		fmt.Fprintf(&sb, " · %s\n", rec.CreatedAt.Format("Jan 2 15:04"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("expected one argument")
	}
	switch strings.ToLower(args[0]) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized toggle %q", args[0])
	}
}

func parseDollarsToCents(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v > 100000 {
		return 0, fmt.Errorf("price out of range: %v", v)
	}
	return int64(math.Round(v * 100)), nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
