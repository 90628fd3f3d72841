package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tbxark/salesagent/agent"
	"github.com/tbxark/salesagent/config"
	"github.com/tbxark/salesagent/metrics"
)

func main() {
	conf := flag.String("config", "", "path to config file")
	conversation := flag.String("conversation", "", "conversation id to resume")
	flag.Parse()
	cfg, err := config.NewLoader().WithConfigPath(*conf).Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	err = startApp(context.Background(), cfg, *conversation)
	if err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func startApp(ctx context.Context, cfg *config.Config, conversationID string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	slog.SetLogLoggerLevel(level)

	collaborators, err := newCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	stores, closeStores, err := newStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Metrics.Namespace, reg)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, reg)
	}

	flow, err := agent.NewFlowFromConfig(cfg, collaborators, stores, collector)
	if err != nil {
		return err
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	salesAgent := agent.NewAgent(
		"SalesAgent",
		"A sales agent that discovers customer needs and guides them to a purchase",
		conversationID,
		flow,
	)
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: salesAgent,
	})

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Conversation %s. Commands: /state, /timeout, /quit\n", conversationID)
	for {
		fmt.Print("Customer: ")
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println("Input closed. Bye.")
			return nil
		}
		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "/quit":
			return nil
		case "/state":
			if err := printState(ctx, flow, conversationID); err != nil {
				return err
			}
			continue
		case "/timeout":
			responses, fErr := flow.FireDueFollowUps(ctx, time.Now().Add(cfg.Engine.FollowUpDelay))
			if fErr != nil {
				return fErr
			}
			if len(responses) == 0 {
				fmt.Println("(no follow-up due)")
			}
			for _, resp := range responses {
				printReply(resp.Message)
			}
			continue
		}

		chatCtx := agent.WithConversationID(ctx, conversationID)
		iter := runner.Run(chatCtx, []adk.Message{schema.UserMessage(input)})
		replied := false
		for {
			event, ok := iter.Next()
			if !ok {
				break
			}
			if event.Err != nil {
				return event.Err
			}
			msg, mErr := event.Output.MessageOutput.GetMessage()
			if mErr != nil {
				return mErr
			}
			printReply(msg.Content)
			replied = true
		}
		if !replied {
			fmt.Println("(agent waits)")
		}
	}
}

func newCollaborators(ctx context.Context, cfg *config.Config) (agent.Collaborators, error) {
	if cfg.LLM.APIKey == "" {
		slog.Warn("no llm api key configured, using local collaborators")
		return agent.NewLocalCollaborators(cfg), nil
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return agent.Collaborators{}, err
	}
	return agent.NewToolBasedCollaborators(cm, cfg)
}

func newStores(ctx context.Context, cfg *config.Config) (agent.Stores, func(), error) {
	if cfg.Redis.Addr == "" {
		return agent.NewMemoryStores(cfg.Engine.HistoryWindow), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return agent.Stores{}, nil, fmt.Errorf("connect redis: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	return agent.NewRedisStores(client, cfg.Redis.KeyPrefix, cfg.Engine.HistoryWindow), closeFn, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}

func printState(ctx context.Context, flow *agent.Flow, conversationID string) error {
	state, err := flow.State(ctx, conversationID)
	if err != nil {
		return err
	}
	raw, err := sonic.ConfigStd.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func printReply(message string) {
	fmt.Printf("\nAgent: %s\n======\n", message)
}
