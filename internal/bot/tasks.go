package bot

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/service"
)

// maxListed keeps a task list inside Telegram's message limit.
const maxListed = 30

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message, args string) error {
	store, err := b.storeFor(ctx, msg.From)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}

	query := parseListArgs(args)
	query.Now = b.now().In(b.loc)
	query.RequiredTags = matchKnownTags(query.RequiredTags, store.UniqueTags())
	log.Printf("[info] list tasks user=%d scope=%s sort=%s tags=%v search=%q", store.Owner(), query.Scope, query.SortKey, query.RequiredTags, query.SearchText)
	return b.sendTaskList(msg.Chat.ID, store, query)
}

func (b *Bot) sendTaskList(chatID int64, store *service.Store, query service.Query) error {
	tasks := store.Query(query)
	if len(tasks) == 0 {
		if query.Scope == service.ScopeToday {
			return b.sendText(chatID, "На сегодня задач нет. 🎉")
		}
		if query.SearchText != "" || len(query.RequiredTags) > 0 {
			return b.sendText(chatID, "Ничего не найдено по этому фильтру.")
		}
		return b.sendText(chatID, "У тебя нет задач. Добавь новую через /newtask.")
	}

	var builder strings.Builder
	if query.Scope == service.ScopeToday {
		builder.WriteString("🔥 <b>Задачи на сегодня</b>\n")
	} else {
		builder.WriteString("📋 <b>Задачи</b>\n")
	}
	if desc := describeQuery(query); desc != "" {
		builder.WriteString(desc)
		builder.WriteByte('\n')
	}
	builder.WriteString("Кнопки: ✅ выполнить или вернуть в работу, 🗑 удалить.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, task := range tasks {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("… и ещё %d. Уточни фильтр, например /tasks сегодня.\n", len(tasks)-maxListed))
			break
		}
		builder.WriteString(formatTask(task, query.Now))

		label := "✅ "
		if task.Completed {
			label = "↩️ "
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label+shortTitle(task.Title, 24), cbCompletePrefix+task.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи id задачи: /done 3f2a91c0")
	}

	store, err := b.storeFor(ctx, msg.From)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	task, err := resolveTask(store.Tasks(), ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	return b.toggleAndReport(ctx, msg.Chat.ID, store, task.ID)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи id задачи: /delete 3f2a91c0")
	}

	store, err := b.storeFor(ctx, msg.From)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}
	task, err := resolveTask(store.Tasks(), ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, userError(err))
	}

	text := fmt.Sprintf("Удалить задачу «%s» (<code>%s</code>)?", escape(normalizeTitle(task.Title)), shortID(task.ID))
	b.confirmations.set(msg.From.ID, confirmationRequest{taskID: task.ID, action: actionDelete})
	return b.sendWithReplyMarkup(msg.Chat.ID, text, confirmKeyboard())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		taskID := strings.TrimPrefix(data, cbCompletePrefix)
		log.Printf("[info] callback complete request user=%d task=%s", cb.From.ID, taskID)
		return b.askCompleteConfirmation(ctx, chatID, cb.From, taskID)
	case strings.HasPrefix(data, cbDeletePrefix):
		taskID := strings.TrimPrefix(data, cbDeletePrefix)
		log.Printf("[info] callback delete request user=%d task=%s", cb.From.ID, taskID)
		return b.askDeleteConfirmation(ctx, chatID, cb.From, taskID)
	case strings.HasPrefix(data, cbConfirmPrefix):
		taskID := strings.TrimPrefix(data, cbConfirmPrefix)
		log.Printf("[info] callback confirm complete user=%d task=%s", cb.From.ID, taskID)
		b.confirmations.clear(cb.From.ID)
		store, err := b.storeFor(ctx, cb.From)
		if err != nil {
			return b.sendText(chatID, userError(err))
		}
		return b.toggleAndReport(ctx, chatID, store, taskID)
	case strings.HasPrefix(data, cbCancelPrefix):
		log.Printf("[info] callback cancel user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbCancelPrefix))
		b.confirmations.clear(cb.From.ID)
		return nil
	default:
		return nil
	}
}

func (b *Bot) askCompleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	store, err := b.storeFor(ctx, from)
	if err != nil {
		return b.sendText(chatID, userError(err))
	}
	task, ok := store.Get(taskID)
	if !ok {
		return b.sendText(chatID, "Задача не найдена или уже удалена.")
	}

	// Reopening needs no confirmation.
	if task.Completed {
		return b.toggleAndReport(ctx, chatID, store, task.ID)
	}

	text := fmt.Sprintf("Отметить задачу «%s» как выполненную?", escape(normalizeTitle(task.Title)))
	if task.Repetition.Repeats() {
		text += fmt.Sprintf("\n♻️ Будет создано следующее повторение (%s).", repetitionLabel(task.Repetition))
	}
	b.confirmations.set(from.ID, confirmationRequest{taskID: task.ID, action: actionComplete})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	store, err := b.storeFor(ctx, from)
	if err != nil {
		return b.sendText(chatID, userError(err))
	}
	task, ok := store.Get(taskID)
	if !ok {
		return b.sendText(chatID, "Задача не найдена или уже удалена.")
	}

	text := fmt.Sprintf("Удалить задачу «%s» (<code>%s</code>)?", escape(normalizeTitle(task.Title)), shortID(task.ID))
	b.confirmations.set(from.ID, confirmationRequest{taskID: task.ID, action: actionDelete})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.confirmations.clear(msg.From.ID)
		store, err := b.storeFor(ctx, msg.From)
		if err != nil {
			return b.sendTextWithRemove(msg.Chat.ID, userError(err))
		}
		if req.action == actionDelete {
			return b.deleteAndReport(ctx, msg.Chat.ID, store, req.taskID)
		}
		return b.toggleAndReport(ctx, msg.Chat.ID, store, req.taskID)
	case isCancelInput(text):
		b.confirmations.clear(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Подтверди или отмени выполнение задачи."
		if req.action == actionDelete {
			prompt = "Подтверди или отмени удаление задачи."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

// toggleAndReport flips completion and reports both the flip and any follow-up.
func (b *Bot) toggleAndReport(ctx context.Context, chatID int64, store *service.Store, taskID string) error {
	res, err := store.ToggleComplete(ctx, taskID)
	if res.Updated == nil && res.Spawned == nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}

	var info strings.Builder
	if res.Updated != nil {
		title := escape(normalizeTitle(res.Updated.Title))
		if res.Updated.Completed {
			info.WriteString(fmt.Sprintf("✅ Задача «%s» выполнена.", title))
		} else {
			info.WriteString(fmt.Sprintf("↩️ Задача «%s» снова в работе.", title))
		}
		log.Printf("[info] task toggled id=%s user=%d completed=%t", res.Updated.ID, store.Owner(), res.Updated.Completed)
	}
	if res.Spawned != nil {
		info.WriteString("\n♻️ Следующее повторение")
		if res.Spawned.DueDate != nil {
			info.WriteString(": " + formatWhen(*res.Spawned.DueDate, b.loc))
		}
		info.WriteString(fmt.Sprintf(" (<code>%s</code>).", shortID(res.Spawned.ID)))
	}
	if err != nil {
		info.WriteString("\n⚠️ " + userError(err))
	}
	return b.sendTextWithRemove(chatID, strings.TrimSpace(info.String()))
}

func (b *Bot) deleteAndReport(ctx context.Context, chatID int64, store *service.Store, taskID string) error {
	task, ok := store.Get(taskID)
	if !ok {
		return b.sendTextWithRemove(chatID, "Задача не найдена или уже удалена.")
	}
	if err := store.DeleteByID(ctx, taskID); err != nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}

	log.Printf("[info] task deleted id=%s user=%d", task.ID, store.Owner())
	return b.sendTextWithRemove(chatID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(normalizeTitle(task.Title))))
}
