// Command lmschat is a terminal chat client for the LMS API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lms-dashboard-go/internal/apiclient"
	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/chat"
	"lms-dashboard-go/internal/guard"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/session"
)

func main() {
	_ = godotenv.Load()
	apiURL := flag.String("api", envOr("LMS_API_URL", "http://localhost:8080"), "API base URL")
	email := flag.String("email", os.Getenv("LMS_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("LMS_PASSWORD"), "account password")
	with := flag.String("with", "", "user id to chat with; lists conversations when empty")
	logMode := flag.String("log", "production", "log mode (development|production)")
	flag.Parse()

	log, err := logger.New(*logMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	api := apiclient.New(*apiURL, nil)
	authClient := auth.NewClient(api, nil)
	api.SetTokenSource(apiclient.SessionTokens(authClient))
	sess := session.New(authClient, api, log)

	snap, err := sess.SignIn(ctx, *email, *password)
	if err != nil {
		log.Fatal("sign in failed", "error", err)
	}
	if d := guard.Decide(snap, guard.Any()); d != guard.Render {
		log.Fatal("not allowed", "decision", d.String())
	}
	viewer, _ := snap.Viewer()
	fmt.Printf("signed in as %s (%s)\n", snap.Profile.FullName, snap.Profile.Role)

	if *with == "" {
		if err := listConversations(ctx, api); err != nil {
			log.Fatal("conversations", "error", err)
		}
		return
	}

	win := chat.NewWindow(api, viewer, 20, log)
	defer win.Close()
	if err := win.Open(ctx, *with); err != nil {
		log.Fatal("open conversation", "error", err)
	}
	printEntries(win.Messages(), viewer.ID)

	go func() {
		for ctx.Err() == nil {
			err := api.Events(ctx, func(ev realtime.Event) {
				m, ok := apiclient.MessageFromEvent(ev)
				if !ok {
					return
				}
				if err := win.Receive(m); err != nil {
					log.Warn("mark read failed", "error", err)
				}
				if m.SenderID == win.Partner() {
					fmt.Printf("< %s\n", m.Content)
				}
			})
			if ctx.Err() != nil {
				return
			}
			log.Warn("event stream dropped, reconnecting", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return
			case "/older":
				if !win.HasMore() {
					fmt.Println("(no older messages)")
					continue
				}
				n, err := win.LoadOlder()
				if err != nil {
					log.Warn("load older failed", "error", err)
					continue
				}
				fmt.Printf("(loaded %d older)\n", n)
				printEntries(win.Messages(), viewer.ID)
			default:
				if _, err := win.Send(line); err != nil {
					fmt.Printf("(not sent: %v)\n", err)
				}
			}
		}
	}
}

func listConversations(ctx context.Context, api *apiclient.Client) error {
	convs, err := api.Conversations(ctx)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("no conversations")
		return nil
	}
	for _, c := range convs {
		fmt.Printf("%-36s  %-24s  unread=%d  %s\n", c.UserID, c.FullName, c.UnreadCount, c.LatestMessage.Content)
	}
	return nil
}

func printEntries(entries []chat.Entry, me string) {
	for _, e := range entries {
		dir := "<"
		if e.SenderID == me {
			dir = ">"
		}
		fmt.Printf("%s %s  %s\n", dir, e.CreatedAt.Local().Format("Jan 2 15:04"), e.Content)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
