package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/entrhq/relance/pkg/agent"
	"github.com/entrhq/relance/pkg/agent/history"
	"github.com/entrhq/relance/pkg/agent/tools"
	"github.com/entrhq/relance/pkg/llm"
	"github.com/entrhq/relance/pkg/llm/openai"
	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/store/sqlite"
	"github.com/entrhq/relance/pkg/types"
)

const sessionFlagUsage = "persist the conversation transcript under this id (requires store.path). " +
	"Only the transcript is restored: notes and folders live in memory and start empty in every process"

type chatOptions struct {
	*rootOptions

	session    string
	model      string
	baseURL    string
	user       string
	budget     int
	showEvents bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Start an interactive chat, or send a single message",
		Example: `  relance chat                          # interactive
  relance chat "create a Recipes folder" # one turn and exit
  relance chat --session work           # resume a stored transcript (notes start empty)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.session, "session", "", sessionFlagUsage)
	f.StringVar(&opts.model, "model", "", "model name (overrides llm.model)")
	f.StringVar(&opts.baseURL, "base-url", "", "OpenAI-compatible base URL (overrides llm.base_url)")
	f.StringVar(&opts.user, "user", os.Getenv("USER"), "principal passed to tool handlers")
	f.IntVar(&opts.budget, "budget", 0, "relance rounds per message (overrides orchestration.relance_budget)")
	f.BoolVarP(&opts.showEvents, "verbose", "v", false, "print tool activity to stderr")
	return cmd
}

func (o *chatOptions) applyFlags() {
	if o.model != "" {
		o.cfg.LLM.Model = o.model
	}
	if o.baseURL != "" {
		o.cfg.LLM.BaseURL = o.baseURL
	}
	if o.budget > 0 {
		o.cfg.Orchestration.RelanceBudget = o.budget
	}
}

func (o *chatOptions) run(cmd *cobra.Command, args []string) error {
	o.applyFlags()
	if o.user == "" {
		return errors.New("a principal is required: pass --user")
	}
	if o.session != "" && o.cfg.Store.Path == "" {
		return errors.New("--session requires store.path in the config file")
	}

	client, err := newModelClient(o.cfg.LLM.Model, o.cfg.LLM.BaseURL, o.cfg.LLM.APIKey, o.cfg.LLM.MaxRetries)
	if err != nil {
		return err
	}

	var onEvent func(*types.AgentEvent)
	if o.showEvents {
		onEvent = eventPrinter(cmd.ErrOrStderr())
	}

	reg := prometheus.NewRegistry()
	eng, err := newEngine(o.cfg, client, reg, onEvent)
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if stop := serveMetrics(o.cfg.Metrics.Listen, eng, cmd.ErrOrStderr()); stop != nil {
		defer stop()
	}

	sess, err := openSession(ctx, o.cfg.Store.Path, o.session, o.cfg.Orchestration.MaxStoredMessages)
	if err != nil {
		return err
	}
	defer sess.Close()

	auth := tools.AuthContext{Principal: o.user}
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		return sess.turn(ctx, eng.controller, strings.Join(args, " "), auth, out)
	}
	return sess.repl(ctx, eng.controller, cmd.InOrStdin(), auth, out)
}

func newModelClient(model, baseURL, apiKey string, maxRetries int) (llm.Client, error) {
	opts := []openai.ClientOption{
		openai.WithModel(model),
		openai.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.NewClient(apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return client, nil
}

// signalContext cancels on SIGINT/SIGTERM so in-flight batches stop early.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// serveMetrics exposes the engine's collectors on addr. It returns a stop
// function, or nil when addr is empty.
func serveMetrics(addr string, eng *engine, errOut io.Writer) func() {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", eng.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(errOut, "metrics endpoint stopped: %v\n", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// chatSession is a conversation plus its optional backing store.
type chatSession struct {
	id    string
	conv  *history.Conversation
	store *sqlite.Store
}

func openSession(ctx context.Context, storePath, id string, maxStored int) (*chatSession, error) {
	s := &chatSession{
		id:   id,
		conv: history.NewConversation(history.WithMaxStored(maxStored)),
	}
	if id == "" {
		return s, nil
	}

	store, err := sqlite.NewStore(storePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.store = store

	msgs, err := store.LoadMessages(ctx, id)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := s.conv.Load(msgs); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}
	return s, nil
}

func (s *chatSession) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// turn runs one user message and persists the transcript, also when the
// turn failed part way.
func (s *chatSession) turn(ctx context.Context, ctrl *agent.Controller, input string, auth tools.AuthContext, out io.Writer) error {
	res, runErr := ctrl.Run(ctx, s.conv, input, auth)

	if s.store != nil {
		// ctx may already be cancelled; the transcript is still saved
		if err := s.store.SaveMessages(context.WithoutCancel(ctx), s.id, s.conv.Messages()); err != nil {
			return errors.Join(runErr, fmt.Errorf("save session: %w", err))
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(out, res.Content)
	return nil
}

func (s *chatSession) repl(ctx context.Context, ctrl *agent.Controller, in io.Reader, auth tools.AuthContext, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "relance chat. Type /exit to quit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		if err := s.turn(ctx, ctrl, line, auth, out); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// eventPrinter renders tool activity as one line per event.
func eventPrinter(w io.Writer) func(*types.AgentEvent) {
	return func(ev *types.AgentEvent) {
		switch ev.Type {
		case types.EventTypeToolCall:
			fmt.Fprintf(w, "  [%d] call %s %s\n", ev.Round, ev.ToolCall.ToolName, ev.ToolCall.ArgumentsJSON)
		case types.EventTypeToolResult:
			fmt.Fprintf(w, "  [%d] ok   %s\n", ev.Round, ev.ToolResult.ToolName)
		case types.EventTypeToolResultError:
			fmt.Fprintf(w, "  [%d] fail %s: %s\n", ev.Round, ev.ToolResult.ToolName, ev.ToolResult.Code())
		case types.EventTypeRelance:
			fmt.Fprintf(w, "  [%d] relance\n", ev.Round)
		case types.EventTypeForcedFinal:
			fmt.Fprintf(w, "  [%d] stopped: %s\n", ev.Round, ev.Metadata["reason"])
		}
	}
}
