package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"groupchat/contract"
	"groupchat/domain"

	"github.com/samber/lo"
)

//go:embed html/*.html
var htmlFS embed.FS

var templates = template.Must(template.ParseFS(htmlFS, "html/*.html"))

const invalidUsername = "Invalid username parameter"

// Pages renders the browser client. SocketURL is where chat.html connects.
type Pages struct {
	log       *slog.Logger
	socketURL string
	registry  contract.IRegistry
	store     contract.IMessageStore
}

func NewPages(log *slog.Logger, socketURL string, registry contract.IRegistry, store contract.IMessageStore) *Pages {
	return &Pages{log: log, socketURL: socketURL, registry: registry, store: store}
}

type chatPage struct {
	SocketURL string
	Username  string
}

type messageRow struct {
	ID      domain.MessageID
	Author  string
	Content string
	Time    string
}

type messagesPage struct {
	Participants []string
	Messages     []messageRow
}

func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	p.render(w, "index.html", nil)
}

func (p *Pages) Chat(w http.ResponseWriter, r *http.Request) {
	p.render(w, "chat.html", chatPage{
		SocketURL: p.socketURL,
		Username:  r.URL.Query().Get("username"),
	})
}

// Submit turns the landing form into a redirect to the chat page.
func (p *Pages) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, invalidUsername, http.StatusBadRequest)
		return
	}
	username := domain.NormalizeName(r.PostForm.Get("username"))
	if username == "" {
		http.Error(w, invalidUsername, http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/chat?username="+url.QueryEscape(username), http.StatusFound)
}

// Messages is a read only view of the current state for operators.
func (p *Pages) Messages(w http.ResponseWriter, r *http.Request) {
	messages, err := p.store.All()
	if err != nil {
		p.log.Error("Failed to load messages", "error", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	p.render(w, "messages.html", messagesPage{
		Participants: p.registry.ListNames(),
		Messages: lo.Map(messages, func(m domain.Message, _ int) messageRow {
			return messageRow{
				ID:      m.ID,
				Author:  m.Author,
				Content: m.Content,
				Time:    m.CreatedAt.Format(time.TimeOnly),
			}
		}),
	})
}

func (p *Pages) render(w http.ResponseWriter, name string, data any) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		p.log.Error("Failed to render page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(sb.String()))
}
