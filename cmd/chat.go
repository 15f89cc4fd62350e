package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/pgconvo/pgconvo/internal/agent"
	"github.com/pgconvo/pgconvo/internal/formatter"
	"github.com/pgconvo/pgconvo/internal/logging"
	"github.com/pgconvo/pgconvo/internal/schema"
	"github.com/pgconvo/pgconvo/internal/sqlexec"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation with the database",
	Long: `Open a terminal session against the configured database. Type questions in
plain language; the model answers, proposes SQL where needed, and summarizes
results. Destructive statements are blocked while read-only mode is active.

Session commands:
  /readonly on|off   toggle the safety gate
  /clear             reset the conversation history
  /schema            print the mapped schema summary
  /quit              leave the session`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// terminalSink renders turn events for an interactive terminal, driving a
// spinner through the thinking and executing phases.
type terminalSink struct {
	spin   *spinner.Spinner
	tables *formatter.Formatter
}

func newTerminalSink() *terminalSink {
	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)

	return &terminalSink{spin: spin, tables: formatter.New()}
}

func (t *terminalSink) Send(event agent.Event) {
	switch event.Type {
	case agent.EventThinking:
		t.spin.Suffix = " thinking..."
		t.spin.Start()
	case agent.EventExecuting:
		t.spin.Suffix = " running query..."
		t.spin.Start()
	case agent.EventText:
		t.spin.Stop()
		fmt.Printf("\n%s\n", event.Content)
	case agent.EventSQL:
		t.spin.Stop()
		fmt.Printf("\n  %s\n", strings.ReplaceAll(event.Content, "\n", "\n  "))
	case agent.EventResult:
		t.spin.Stop()

		if result, ok := event.Data.(sqlexec.ExecutionResult); ok {
			fmt.Printf("\n%s\n", t.tables.FormatResult(result))
		}
	case agent.EventSummary:
		t.spin.Stop()
		fmt.Printf("\n%s\n", event.Content)
	case agent.EventError:
		t.spin.Stop()
		fmt.Printf("\nError: %s\n", event.Content)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logging.GetLogger()

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	sink := newTerminalSink()

	model, err := newModelClient(nil)
	if err != nil {
		return err
	}

	session := agent.NewSession(agent.Options{
		Model:    model,
		Executor: sqlexec.NewExecutor(database, cfg.Agent.ReadOnly),
		Engine:   schema.NewEngine(database, database),
		Sink:     sink,
		Logger:   logger,
	})

	sink.spin.Suffix = " mapping schema..."
	sink.spin.Start()

	err = session.PrimeContext(ctx)

	sink.spin.Stop()

	if err != nil {
		return err
	}

	name, version, err := database.ServerInfo(ctx)
	if err == nil {
		fmt.Printf("Connected to %s (%s)\n", name, shortVersion(version))
	}

	fmt.Printf("Mapped %d table(s). Read-only mode: %v. Type /quit to exit.\n\n",
		len(session.Schema().Graph().Tables), session.ReadOnly())

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleSessionCommand(session, line); quit {
				break
			}

			continue
		}

		session.HandleMessage(ctx, line)
		fmt.Println()
	}

	return scanner.Err()
}

// handleSessionCommand processes slash commands; returns true to quit.
func handleSessionCommand(session *agent.Session, line string) bool {
	fields := strings.Fields(line)

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/clear":
		session.ClearConversation()
		fmt.Println("Conversation cleared.")
	case "/readonly":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Println("Usage: /readonly on|off")
			break
		}

		session.SetReadOnly(fields[1] == "on")
		fmt.Printf("Read-only mode: %v\n", session.ReadOnly())
	case "/schema":
		if graph := session.Schema().Graph(); graph != nil {
			fmt.Println(session.Schema().ContextSummary())
		} else {
			fmt.Println("No schema mapped.")
		}
	default:
		fmt.Printf("Unknown command: %s\n", fields[0])
	}

	return false
}

// shortVersion trims the full Postgres version banner to its leading
// product and version words.
func shortVersion(version string) string {
	fields := strings.Fields(version)
	if len(fields) >= 2 {
		return fields[0] + " " + fields[1]
	}

	return version
}
