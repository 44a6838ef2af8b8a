package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chatline/internal/chatsync"
	"chatline/internal/config"
	"chatline/internal/domain"
	"chatline/internal/grouping"
	"chatline/internal/logging"
	"chatline/internal/mockapi"
	"chatline/internal/store"
	"chatline/internal/transport"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	serverURL := flag.String("server", cfg.ServerURL, "dev server URL (empty: built-in mock backend)")
	userID := flag.Int64("user", cfg.UserID, "session user id (0: server default)")
	flag.Parse()

	log := logging.Init(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New()

	var svc domain.ChatService
	var feed *transport.EventFeed
	if *serverURL != "" {
		client, err := transport.Dial(ctx, *serverURL, *userID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to connect:", err)
			os.Exit(1)
		}
		svc = client
		feed = transport.NewEventFeed(*serverURL, client.Token(), st, log)
	} else {
		mock := mockapi.New()
		if *userID != 0 {
			mock.CurrentUserID = *userID
		}
		svc = mock
	}

	syncer := chatsync.New(st, svc, log)

	if feed != nil {
		// Messages landing in the open conversation are acknowledged right
		// away, so the sender's seen label updates without a reopen.
		feed.OnMessage(func(conversationID string) {
			if st.ActiveConversationID() != conversationID {
				return
			}
			if err := syncer.MarkConversationSeen(ctx, conversationID); err != nil {
				log.Warn("mark conversation seen", "conversation", conversationID, "error", err)
			}
		})
		go func() {
			if err := feed.Listen(ctx); err != nil && ctx.Err() == nil {
				log.Warn("event feed stopped", "error", err)
			}
		}()
	}

	if err := syncer.Bootstrap(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load session:", err)
		os.Exit(1)
	}

	cu := st.CurrentUser()
	fmt.Printf("chatline - signed in as %s (#%d)\n", cu.Name, cu.ID)
	fmt.Println(`type ":help" for commands`)

	// Print messages from others as they land in the active thread.
	unsubscribe := st.Subscribe(watchIncoming(st))
	defer unsubscribe()

	printConversations(st)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			send(ctx, syncer, st, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "help":
			printHelp()
		case "list":
			printConversations(st)
		case "users":
			printUsers(st)
		case "open":
			open(ctx, syncer, st, arg)
		case "chat":
			chat(ctx, syncer, st, arg)
		case "back":
			syncer.CloseConversation()
			printConversations(st)
		case "retry":
			retry(ctx, syncer, st)
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command, see :help")
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  :list          show conversations
  :users         show users
  :open <n>      open conversation n from the list
  :chat <n>      start a conversation with user n from :users
  :back          leave the current conversation
  :retry         resend failed messages in the current conversation
  :quit          exit
anything else is sent as a message to the open conversation`)
}

func printConversations(st *store.Store) {
	cu := st.CurrentUser()
	convs := st.Conversations()
	if len(convs) == 0 {
		fmt.Println("no conversations yet - use :users and :chat to start one")
		return
	}
	now := time.Now()
	for i, c := range convs {
		other := c.Other(cu.ID)
		status := " "
		if st.IsOnline(other.ID) {
			status = "*"
		}
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Body
			if len(preview) > 40 {
				preview = preview[:40] + "…"
			}
			preview = fmt.Sprintf("  %q (%s)", preview, grouping.FormatMessageTime(c.LastMessage.CreatedAt, now))
		}
		fmt.Printf("%2d. %s %s%s\n", i+1, status, other.Name, preview)
	}
}

func printUsers(st *store.Store) {
	for i, u := range st.Users() {
		status := "offline"
		if st.IsOnline(u.ID) {
			status = "online"
		}
		fmt.Printf("%2d. %s <%s> - %s\n", i+1, u.Name, u.Email, status)
	}
}

func open(ctx context.Context, syncer *chatsync.Syncer, st *store.Store, arg string) {
	n, err := strconv.Atoi(arg)
	convs := st.Conversations()
	if err != nil || n < 1 || n > len(convs) {
		fmt.Println("usage: :open <n> - see :list")
		return
	}
	conv := convs[n-1]
	if err := syncer.OpenConversation(ctx, conv.ID); err != nil {
		fmt.Println("failed to open conversation:", err)
		return
	}
	printThread(st, conv.ID)
}

func chat(ctx context.Context, syncer *chatsync.Syncer, st *store.Store, arg string) {
	n, err := strconv.Atoi(arg)
	users := st.Users()
	if err != nil || n < 1 || n > len(users) {
		fmt.Println("usage: :chat <n> - see :users")
		return
	}
	conv, err := syncer.StartConversation(ctx, users[n-1].ID)
	if err != nil {
		fmt.Println("failed to start conversation:", err)
		return
	}
	if err := syncer.OpenConversation(ctx, conv.ID); err != nil {
		fmt.Println("failed to open conversation:", err)
		return
	}
	printThread(st, conv.ID)
}

func send(ctx context.Context, syncer *chatsync.Syncer, st *store.Store, body string) {
	convID := st.ActiveConversationID()
	if convID == "" {
		fmt.Println("no open conversation - use :open or :chat first")
		return
	}
	handle, err := syncer.Send(ctx, convID, body, "", "")
	if err != nil {
		fmt.Println("failed to send:", err)
		return
	}
	go func() {
		<-handle.Done()
		if err := handle.Err(); err != nil {
			fmt.Println("\nmessage failed to send - use :retry")
		}
	}()
}

func retry(ctx context.Context, syncer *chatsync.Syncer, st *store.Store) {
	convID := st.ActiveConversationID()
	if convID == "" {
		fmt.Println("no open conversation")
		return
	}
	retried := 0
	for _, m := range st.Messages(convID) {
		if m.Status == domain.StatusFailed {
			if _, err := syncer.RetrySend(ctx, convID, m.ID); err == nil {
				retried++
			}
		}
	}
	fmt.Printf("retrying %d message(s)\n", retried)
}

func printThread(st *store.Store, convID string) {
	cu := st.CurrentUser()
	msgs := st.Messages(convID)
	now := time.Now()

	for _, g := range grouping.BySender(msgs) {
		name := "me"
		if g.SenderID != cu.ID {
			if u, ok := st.UserByID(g.SenderID); ok {
				name = u.Name
			} else {
				name = fmt.Sprintf("user %d", g.SenderID)
			}
		}
		fmt.Printf("-- %s, %s\n", name, grouping.FormatMessageTime(g.Timestamp, now))
		for _, m := range g.Messages {
			marker := ""
			switch m.Status {
			case domain.StatusSending:
				marker = " [sending]"
			case domain.StatusFailed:
				marker = " [failed]"
			default:
				if m.SenderID == cu.ID {
					marker = " [" + grouping.SeenLabel(m, cu.ID) + "]"
				}
			}
			fmt.Printf("   %s%s\n", m.Body, marker)
		}
	}
}

// watchIncoming prints messages from other users arriving in the active
// conversation while the REPL is idle.
func watchIncoming(st *store.Store) func() {
	seen := make(map[string]struct{})
	return func() {
		convID := st.ActiveConversationID()
		if convID == "" {
			return
		}
		cu := st.CurrentUser()
		if cu == nil {
			return
		}
		for _, m := range st.Messages(convID) {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			if m.SenderID != cu.ID {
				fmt.Printf("\n%s: %s\n> ", m.Sender.Name, m.Body)
			}
		}
	}
}
