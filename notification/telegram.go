package notification

import (
	"errors"
	"fmt"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"copytrader/engine"
	"copytrader/model"
	"copytrader/storage"
	"copytrader/utils"
)

type Telegram struct {
	dispatcher *engine.Dispatcher
	settings   model.Settings
	bot        *tb.Bot
}

// NewTelegram wires a telebot notifier around the dispatcher: terminal job
// events are pushed to the configured users, who can also poll /status and
// /jobs.
func NewTelegram(dispatcher *engine.Dispatcher, settings model.Settings) (*Telegram, error) {
	poller := &tb.LongPoller{Timeout: 10 * time.Second}
	userMiddleware := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			utils.Log.Error("no message, ", u)
			return false
		}
		if !allowedUser(settings.Telegram.Users, u.Message.Sender.ID) {
			utils.Log.Error("invalid user, ", u.Message)
			return false
		}
		return true
	})

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    userMiddleware,
	})
	if err != nil {
		return nil, err
	}

	telegram := &Telegram{
		dispatcher: dispatcher,
		settings:   settings,
		bot:        client,
	}
	client.Handle("/status", telegram.statusHandle)
	client.Handle("/jobs", telegram.jobsHandle)
	return telegram, nil
}

func (t *Telegram) Start() {
	go t.bot.Start()
	t.Notify("copy trader online")
}

// allowedUser checks a sender against the configured allowlist. Telegram
// ids are int64 on the wire.
func allowedUser(users []int, id int64) bool {
	for _, user := range users {
		if id == int64(user) {
			return true
		}
	}
	return false
}

func (t *Telegram) Notify(text string) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.bot.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			utils.Log.Error(err)
		}
	}
}

func (t *Telegram) statusHandle(m *tb.Message) {
	status := t.dispatcher.Status()
	text := fmt.Sprintf("state: %s\ndispatched: %d\nconfirmed: %d\nfailed: %d (forced: %d)",
		status.State, status.JobsDispatched, status.JobsConfirmed,
		status.JobsFailed, status.ForcedFailures)
	if _, err := t.bot.Send(m.Sender, text); err != nil {
		utils.Log.Error(err)
	}
}

func (t *Telegram) jobsHandle(m *tb.Message) {
	jobs, err := t.dispatcher.ListCopyJobs(storage.WithTerminal())
	if err != nil {
		t.OnError(err)
		return
	}
	if len(jobs) == 0 {
		if _, err := t.bot.Send(m.Sender, "no finished jobs yet"); err != nil {
			utils.Log.Error(err)
		}
		return
	}
	// only the most recent few to stay inside message limits
	if len(jobs) > 10 {
		jobs = jobs[len(jobs)-10:]
	}
	text := ""
	for _, job := range jobs {
		text += job.String() + "\n"
	}
	if _, err := t.bot.Send(m.Sender, text); err != nil {
		utils.Log.Error(err)
	}
}

func (t *Telegram) OnJobDone(job model.CopyJob) {
	title := "✅ confirmed"
	if job.Status == model.JobStatusFailed {
		title = "❌ failed"
	}
	t.Notify(fmt.Sprintf("%s %s %s %s %f on follower %d\n%s",
		title, job.Side, job.Type, job.Symbol, job.Quantity,
		job.FollowerAccountID, job.LastError))
}

func (t *Telegram) OnError(err error) {
	title := "🛑 error"
	var classified *engine.SizingError
	if errors.As(err, &classified) {
		title = "⚠️ sizing"
	}
	t.Notify(fmt.Sprintf("%s\n%v", title, err))
}
