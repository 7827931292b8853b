package bot

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/model"
)

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.confirmations.clear(msg.From.ID)
	b.conversations.set(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state, ok := b.conversations.get(msg.From.ID)
	if !ok || state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Название не может быть пустым. Как назвать задачу?", cancelKeyboard())
		}
		state.draft.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.draft.Description = text
		}
		state.stage = stageTags
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Выбери тег или перечисли свои через запятую (можно «Пропустить»).", tagKeyboard())
	case stageTags:
		if !isSkipInput(text) {
			state.draft.Tags = parseTags(text)
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Укажи срок: <code>2025-11-30</code> или <code>30.11.2025 18:00</code> (или «Пропустить»).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			due, err := parseDateTime(text, b.loc)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2025-11-30</code>, <code>30.11.2025 18:00</code> или «Пропустить».", skipKeyboard())
			}
			state.draft.DueDate = &due
		}
		state.stage = stageReminder
		prompt := "🔔 Когда напомнить? Дата и время (<code>30.11.2025 09:00</code>)"
		if state.draft.DueDate != nil {
			prompt += " или только время в день срока (<code>09:00</code>)"
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt+". Можно «Пропустить».", skipKeyboard())
	case stageReminder:
		if !isSkipInput(text) {
			reminder, err := parseReminder(text, state.draft.DueDate, b.now(), b.loc)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать время напоминания. Пример: <code>30.11.2025 09:00</code> или <code>09:00</code>.", skipKeyboard())
			}
			if !reminder.After(b.now()) {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Напоминание должно быть в будущем. Укажи другое время или «Пропустить».", skipKeyboard())
			}
			state.draft.Reminder = &reminder
		}
		state.stage = stageRepetition
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Повторять задачу после выполнения?", repetitionKeyboard())
	case stageRepetition:
		repetition, err := parseRepetitionInput(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери вариант на клавиатуре.", repetitionKeyboard())
		}
		state.draft.Repetition = repetition
		err = b.finishTaskCreation(ctx, msg.From, state.draft, msg.Chat.ID)
		b.conversations.clear(msg.From.ID)
		return err
	default:
		b.conversations.clear(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, draft model.Draft, chatID int64) error {
	store, err := b.storeFor(ctx, from)
	if err != nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}

	task, err := store.Add(ctx, draft)
	if err != nil {
		return b.sendTextWithRemove(chatID, userError(err))
	}

	log.Printf("[info] task created id=%s user=%d repetition=%s", task.ID, task.UserID, task.Repetition)

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", shortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}
	if len(task.Tags) > 0 {
		summary.WriteString(fmt.Sprintf("• <b>Теги:</b> %s\n", formatTags(task.Tags)))
	}
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Срок:</b> %s\n", formatWhen(*task.DueDate, b.loc)))
	}
	if task.Reminder != nil {
		summary.WriteString(fmt.Sprintf("• <b>Напоминание:</b> %s\n", formatWhen(*task.Reminder, b.loc)))
	}
	if task.Repetition.Repeats() {
		summary.WriteString(fmt.Sprintf("• <b>Повтор:</b> %s\n", repetitionLabel(task.Repetition)))
	}

	return b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String()))
}
