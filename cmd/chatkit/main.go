package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/ragdesk/chatkit/chatkit"
	"github.com/ragdesk/chatkit/core/chat"
	"github.com/ragdesk/chatkit/observability"
	"github.com/ragdesk/chatkit/stream"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to chatkit config JSON file")
		baseURL    = flag.String("base-url", "", "Backend API base URL (overrides config)")
		identity   = flag.String("identity", "", "Identity for persisted history (overrides config)")
		model      = flag.String("model", "", "Model name sent with each query (overrides config)")
		backend    = flag.String("store", "", "Store backend: file | memory | sqlite | redis (overrides config)")
		storePath  = flag.String("store-path", "", "Store path for file/sqlite backends (overrides config)")
		noWeb      = flag.Bool("no-web", false, "Disable hybrid web search")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := chatkit.DefaultConfig()
	if *configFile != "" {
		loaded, err := chatkit.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *identity != "" {
		cfg.Identity = *identity
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *noWeb {
		cfg.DisableWebSearch = true
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()

	client, err := chatkit.New(ctx, &cfg,
		chatkit.WithObserver(observability.NewSlogObserver(logger)))
	if err != nil {
		log.Fatalf("Failed to create chat client: %v", err)
	}
	defer client.Close()

	fmt.Println("chatkit interactive session. Type /help for commands.")
	if cfg.Identity == "" {
		fmt.Println("No identity set; history will not be saved. Use -identity to persist.")
	}

	repl(ctx, client)
}

func repl(ctx context.Context, client *chatkit.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	// Indices shown by the last /list, so /load and /delete accept numbers.
	var listed []string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			send(ctx, client, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "/quit", "/exit":
			return

		case "/help":
			printHelp()

		case "/new":
			s := client.StartNewSession(ctx)
			fmt.Printf("Started new session %s\n", s.ID)

		case "/list":
			listed = listed[:0]
			history := client.History()
			if len(history) == 0 {
				fmt.Println("No saved sessions.")
				continue
			}
			for i, s := range history {
				marker := " "
				if s.ID == client.Active().ID {
					marker = "*"
				}
				fmt.Printf("%s [%d] %s  (%d messages, updated %s)\n",
					marker, i+1, s.Title, len(s.Messages), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
				listed = append(listed, s.ID)
			}

		case "/load":
			id, ok := resolveID(arg, listed)
			if !ok {
				fmt.Println("Usage: /load <number from /list, or session id>")
				continue
			}
			s, err := client.LoadSession(ctx, id)
			if err != nil {
				fmt.Printf("Load failed: %v\n", err)
				continue
			}
			fmt.Printf("Loaded %q\n", s.Title)
			printTranscript(s)

		case "/delete":
			id, ok := resolveID(arg, listed)
			if !ok {
				fmt.Println("Usage: /delete <number from /list, or session id>")
				continue
			}
			if err := client.DeleteSession(ctx, id); err != nil {
				fmt.Printf("Delete failed: %v\n", err)
				continue
			}
			fmt.Println("Deleted.")

		case "/delete-all":
			if err := client.DeleteAllSessions(ctx); err != nil {
				fmt.Printf("Delete failed: %v\n", err)
				continue
			}
			fmt.Println("All sessions deleted.")

		case "/web":
			client.SetWebSearch(!client.WebSearch())
			if client.WebSearch() {
				fmt.Println("Web search enabled.")
			} else {
				fmt.Println("Web search disabled.")
			}

		default:
			fmt.Printf("Unknown command %s. Type /help for commands.\n", cmd)
		}
	}
}

// send runs one turn. Ctrl-C while the request is in flight cancels it
// without exiting the program.
func send(ctx context.Context, client *chatkit.Client, query string) {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := client.Send(sendCtx, query); err != nil {
		fmt.Printf("Send failed: %v\n", err)
		return
	}

	msgs := client.Active().Messages
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]

	if last.Error {
		fmt.Println(last.Content)
		return
	}

	printStreamed(last.Content)
	printSources(last)
}

// printStreamed reveals the answer sentence by sentence, the way the
// typing simulator paces it.
func printStreamed(text string) {
	var printed int
	task := stream.New().Start(text, func(revealed string, streaming bool) {
		if len(revealed) > printed {
			fmt.Print(revealed[printed:])
			printed = len(revealed)
		}
		if !streaming {
			fmt.Println()
		}
	})
	<-task.Done()
}

func printSources(msg chat.Message) {
	if len(msg.Sources) == 0 {
		return
	}
	fmt.Println("Sources:")
	for _, src := range msg.Sources {
		fmt.Printf("  - %s\n", src.Ref())
	}
}

func printTranscript(s *chat.Session) {
	for _, msg := range s.Messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
}

// resolveID maps a /list ordinal or a raw session id to a session id.
func resolveID(arg string, listed []string) (string, bool) {
	if arg == "" {
		return "", false
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(listed) {
			return "", false
		}
		return listed[n-1], true
	}
	return arg, true
}

func printHelp() {
	fmt.Println(`Commands:
  /new          start a new session (current one is saved)
  /list         list saved sessions
  /load <n|id>  switch to a saved session
  /delete <n|id> delete a session
  /delete-all   delete all sessions
  /web          toggle hybrid web search
  /quit         exit
Anything else is sent to the assistant. Ctrl-C cancels an in-flight request.`)
}
