package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/config"
	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

// Bot aggregates Telegram API with the per-user task stores.
type Bot struct {
	api     *tgbotapi.BotAPI
	users   *repository.UserRepository
	stores  *service.Stores
	reports *service.ReportService
	config  *config.Config
	loc     *time.Location
	now     func() time.Time

	// rescheduleReports, when set, applies a new report interval to the running scheduler.
	rescheduleReports func(time.Duration) error

	conversations *chatState[*conversationState]
	confirmations *chatState[confirmationRequest]
	mu            sync.Mutex
}

func New(token string, users *repository.UserRepository, stores *service.Stores, reports *service.ReportService, cfg *config.Config, loc *time.Location) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:           api,
		users:         users,
		stores:        stores,
		reports:       reports,
		config:        cfg,
		loc:           loc,
		now:           time.Now,
		conversations: newChatState[*conversationState](),
		confirmations: newChatState[confirmationRequest](),
	}, nil
}

// OnIntervalChange registers the hook used by /interval.
func (b *Bot) OnIntervalChange(fn func(time.Duration) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rescheduleReports = fn
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.conversations.clear(msg.From.ID)
		b.confirmations.clear(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён. Можно начать заново.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.confirmations.get(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if state, ok := b.conversations.get(msg.From.ID); ok {
		log.Printf("[info] conversation step %d from %d", state.stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /newtask, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg, msg.CommandArguments())
	case "today":
		return b.handleListTasks(ctx, msg, "today "+msg.CommandArguments())
	case "done", "complete":
		return b.handleComplete(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "tags":
		return b.handleTags(ctx, msg)
	case "refresh":
		return b.handleRefresh(ctx, msg)
	case "interval":
		return b.handleInterval(msg)
	case "cancel":
		b.conversations.clear(msg.From.ID)
		b.confirmations.clear(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	name := user.DisplayName()
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик задач: напомню о сроках и сам заведу следующую повторяющуюся задачу.</b>\n\n"+
			"Начни с /newtask, а список команд есть в /help.",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /newtask — добавить задачу пошагово\n" +
		"• /tasks — все задачи, отсортированные по сроку\n" +
		"• /tasks сегодня #работа отчёт — фильтры: сегодня, теги через #, текст для поиска, «алфавит» для сортировки по названию\n" +
		"• /today — задачи на сегодня\n" +
		"• /done &lt;id&gt; — отметить выполненной или вернуть в работу (достаточно первых символов id)\n" +
		"• /delete &lt;id&gt; — удалить задачу\n" +
		"• /tags — все используемые теги\n" +
		"• /refresh — перечитать задачи из базы\n" +
		"• /stats — статистика\n" +
		"• /report — отчёт прямо сейчас\n" +
		"• /interval &lt;часы&gt; — как часто присылать отчёт\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	store, err := b.storeFor(ctx, msg.From)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, b.reports.DailySummary(store.Tasks(), b.now()))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	store, err := b.storeFor(ctx, msg.From)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	stats := service.ComputeStats(store.Tasks(), b.now().In(b.loc))
	return b.sendText(msg.Chat.ID, formatStats(stats))
}

func (b *Bot) handleTags(ctx context.Context, msg *tgbotapi.Message) error {
	store, err := b.storeFor(ctx, msg.From)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	tags := store.UniqueTags()
	if len(tags) == 0 {
		return b.sendText(msg.Chat.ID, "Тегов пока нет. Добавь их при создании задачи.")
	}
	var builder strings.Builder
	builder.WriteString("🏷 <b>Теги</b>\n")
	for _, tag := range tags {
		builder.WriteString(fmt.Sprintf("• #%s\n", escape(tag)))
	}
	builder.WriteString("\nФильтр по тегу: /tasks #тег")
	return b.sendText(msg.Chat.ID, builder.String())
}

func (b *Bot) handleRefresh(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	store, err := b.stores.Reload(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔄 Задачи обновлены: %d.", len(store.Tasks())))
}

// SendDailyReports sends a summary to every known user, re-reading each task list first.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		store, err := b.stores.Reload(ctx, user.ID)
		if err != nil {
			log.Printf("reload tasks for user %d: %v", user.TelegramID, err)
			continue
		}
		text := b.reports.DailySummary(store.Tasks(), now)
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

// SendReminder delivers a task reminder to its owner's private chat.
func (b *Bot) SendReminder(ctx context.Context, task model.Task) error {
	user, err := b.users.FindByID(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("find reminder owner: %w", err)
	}

	msg := tgbotapi.NewMessage(user.TelegramID, formatReminder(task, b.loc))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Выполнено", cbCompletePrefix+task.ID),
	))
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	log.Printf("[info] reminder sent task=%s user=%d", task.ID, user.ID)
	return nil
}

func (b *Bot) handleInterval(msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		current := "не задан"
		if b.config != nil && b.config.ReportTime != "" {
			current = "ежедневно в " + b.config.ReportTime
		} else if b.config != nil && b.config.ReportInterval > 0 {
			current = fmt.Sprintf("каждые %d ч.", int(b.config.ReportInterval.Hours()))
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Текущий интервал отчётов: %s. Укажи число часов, например: /interval 4", current))
	}
	hours, err := strconv.Atoi(args)
	if err != nil || hours <= 0 {
		return b.sendText(msg.Chat.ID, "Интервал должен быть положительным числом часов, например /interval 6")
	}
	interval := time.Duration(hours) * time.Hour

	b.mu.Lock()
	reschedule := b.rescheduleReports
	b.mu.Unlock()
	if reschedule != nil {
		if err := reschedule(interval); err != nil {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось изменить интервал: %s", escape(err.Error())))
		}
	}

	b.mu.Lock()
	if b.config != nil {
		b.config.ReportInterval = interval
		b.config.ReportTime = ""
	}
	b.mu.Unlock()
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Интервал отчётов обновлён: каждые %d ч.", hours))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg, "")
	case strings.ToLower(menuLabelToday):
		return true, b.handleListTasks(ctx, msg, "today")
	case strings.ToLower(menuLabelTags):
		return true, b.handleTags(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) storeFor(ctx context.Context, from *tgbotapi.User) (*service.Store, error) {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil, err
	}
	return b.stores.For(ctx, user.ID)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Главное меню")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

// userError turns store failures into a chat message.
func userError(err error) string {
	var prefix string
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return "Задача не найдена."
	case errors.Is(err, errAmbiguousRef):
		return "Под этот id подходит несколько задач. Укажи больше символов."
	case errors.Is(err, service.ErrLoad):
		prefix = "Не удалось загрузить задачи"
	case errors.Is(err, service.ErrAdd):
		prefix = "Не удалось сохранить задачу"
	case errors.Is(err, service.ErrUpdate):
		prefix = "Не удалось обновить задачу"
	case errors.Is(err, service.ErrDelete):
		prefix = "Не удалось удалить задачу"
	default:
		prefix = "Ошибка"
	}
	return fmt.Sprintf("%s: %s", prefix, escape(err.Error()))
}
