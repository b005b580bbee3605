package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/azariacindy/MyStudyMate/internal/clock"
	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
	"github.com/azariacindy/MyStudyMate/internal/reminder"
	"github.com/azariacindy/MyStudyMate/internal/repository"
	"github.com/azariacindy/MyStudyMate/internal/service"
)

const (
	cbDonePrefix = "done:"

	upcomingLimit = 10
)

const (
	menuLabelAssignments = "📋 Assignments"
	menuLabelSchedules   = "📅 Schedules"
	menuLabelHelp        = "ℹ️ Help"
)

// API is the part of tgbotapi.BotAPI the bot talks to.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot links Telegram chats to users and lets them manage assignments and
// schedules from the chat.
type Bot struct {
	api         API
	users       *repository.UserRepository
	assignments *service.AssignmentService
	schedules   *service.ScheduleService
	messages    *service.ReminderService
	clock       clock.Clock
	loc         *time.Location
	logger      *zap.Logger
}

func New(
	api API,
	users *repository.UserRepository,
	assignments *service.AssignmentService,
	schedules *service.ScheduleService,
	messages *service.ReminderService,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *Bot {
	return &Bot{
		api:         api,
		users:       users,
		assignments: assignments,
		schedules:   schedules,
		messages:    messages,
		clock:       clk,
		loc:         loc,
		logger:      logger.Named("bot"),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, update)
	}
	return ctx.Err()
}

// HandleUpdate dispatches one update. Errors are logged, never returned,
// so one bad message does not stop polling.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.logger.Warn("handle callback", zap.Error(err))
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.logger.Warn("handle message", zap.Error(err))
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if msg.IsCommand() {
		b.logger.Info("command",
			zap.Int64("from", msg.From.ID),
			zap.String("command", msg.Command()),
		)
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelAssignments:
		return b.handleAssignments(ctx, msg)
	case menuLabelSchedules:
		return b.handleSchedules(ctx, msg)
	case menuLabelHelp:
		return b.handleHelp(msg)
	}
	return b.sendText(msg.Chat.ID, "I did not get that. Try /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "assignments":
		return b.handleAssignments(ctx, msg)
	case "schedules":
		return b.handleSchedules(ctx, msg)
	case "add":
		return b.handleAdd(ctx, msg)
	case "event":
		return b.handleEvent(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>This chat now receives your study reminders.</b>\n\n%s", escape(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /assignments — open assignments by due date\n" +
	"• /schedules — upcoming schedules\n" +
	"• /add &lt;YYYY-MM-DD&gt; &lt;title&gt; — new assignment\n" +
	"• /event &lt;YYYY-MM-DD&gt; &lt;HH:MM&gt; &lt;HH:MM&gt; &lt;title&gt; — new schedule\n" +
	"• /done &lt;id&gt; — mark an assignment done"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) handleAssignments(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendAssignmentList(ctx, msg.Chat.ID, user)
}

func (b *Bot) sendAssignmentList(ctx context.Context, chatID int64, user *model.User) error {
	items, err := b.assignments.ListPending(ctx, user.ID)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load assignments: %s", escape(err.Error())))
	}
	if len(items) == 0 {
		return b.sendText(chatID, "No open assignments. Add one with /add.")
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, a := range items {
		label := fmt.Sprintf("✅ #%d · %s", a.ID, shortTitle(a.Title, 24))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", cbDonePrefix, a.ID)),
		))
	}

	out := tgbotapi.NewMessage(chatID, b.messages.AssignmentDigest(items, b.clock.Now()))
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) handleSchedules(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	rows, err := b.schedules.Upcoming(ctx, user.ID, b.clock.Now(), upcomingLimit)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load schedules: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, b.messages.ScheduleDigest(rows))
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		return b.sendText(msg.Chat.ID, "Usage: /add 2025-11-30 Essay draft")
	}
	deadline, err := reminder.ParseDate(fields[0], b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Use the date format <code>2025-11-30</code>.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	a, err := b.assignments.Create(ctx, user.ID, service.AssignmentInput{
		Title:    strings.Join(fields[1:], " "),
		Deadline: deadline,
	})
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the assignment: %s", escape(err.Error())))
	}
	b.logger.Info("assignment created", zap.Uint("id", a.ID), zap.Uint("user_id", user.ID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Saved #%d «%s», due %s.", a.ID, escape(a.Title), a.Deadline.In(b.loc).Format(clock.DateLayout)))
}

func (b *Bot) handleEvent(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 4 {
		return b.sendText(msg.Chat.ID, "Usage: /event 2025-11-30 09:00 10:40 Algorithms lecture")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	ev, err := b.schedules.Create(ctx, user.ID, service.ScheduleInput{
		Date:      fields[0],
		StartTime: fields[1],
		EndTime:   fields[2],
		Title:     strings.Join(fields[3:], " "),
	})
	switch {
	case errs.Is(err, errs.ErrScheduleConflict):
		return b.sendText(msg.Chat.ID, fmt.Sprintf("⛔ That slot is taken: %s", escape(err.Error())))
	case errs.Is(err, errs.ErrValidation):
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Check the input: %s", escape(err.Error())))
	case err != nil:
		return err
	}
	b.logger.Info("schedule created", zap.Uint("id", ev.ID), zap.Uint("user_id", user.ID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📅 Saved #%d «%s» on %s %s–%s. Reminder %d min before.",
		ev.ID, escape(ev.Title), ev.Date, ev.StartTime, ev.EndTime, ev.ReminderMinutes))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give the assignment id: /done 12")
	}
	id, err := parseID(args, "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "The id must be a number.")
	}
	return b.completeAssignment(ctx, msg.Chat.ID, msg.From, id, false)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", zap.Error(err))
	}
	if !strings.HasPrefix(cb.Data, cbDonePrefix) {
		return nil
	}
	id, err := parseID(cb.Data, cbDonePrefix)
	if err != nil {
		return nil
	}
	return b.completeAssignment(ctx, cb.Message.Chat.ID, cb.From, id, true)
}

func (b *Bot) completeAssignment(ctx context.Context, chatID int64, from *tgbotapi.User, id uint, refresh bool) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	if err := b.assignments.MarkDone(ctx, user.ID, id); err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return b.sendText(chatID, "Assignment not found.")
		}
		return err
	}
	b.logger.Info("assignment done", zap.Uint("id", id), zap.Uint("user_id", user.ID))
	if err := b.sendText(chatID, fmt.Sprintf("✅ Assignment #%d is done. No more reminders for it.", id)); err != nil {
		return err
	}
	if refresh {
		return b.sendAssignmentList(ctx, chatID, user)
	}
	return nil
}

// SendDailyDigests sends every Telegram-linked user with open assignments
// their grouped list.
func (b *Bot) SendDailyDigests(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.clock.Now()
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if user.TelegramID == nil {
			continue
		}
		items, err := b.assignments.ListPending(ctx, user.ID)
		if err != nil {
			b.logger.Warn("load digest", zap.Uint("user_id", user.ID), zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}
		if err := b.sendText(*user.TelegramID, b.messages.AssignmentDigest(items, now)); err != nil {
			b.logger.Warn("send digest", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	name := strings.TrimSpace(strings.Join([]string{from.FirstName, from.LastName}, " "))
	if name == "" {
		name = from.UserName
	}
	return b.users.UpsertFromTelegram(ctx, from.ID, name)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelAssignments),
			tgbotapi.NewKeyboardButton(menuLabelSchedules),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func parseID(data, prefix string) (uint, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(data, prefix))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Wrapf(errs.ErrInvalidInput, "bad id %q", raw)
	}
	return uint(id), nil
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
