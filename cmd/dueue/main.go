package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	serverrun "github.com/tombailey/dueue/internal/cmd/server"
	cfgpkg "github.com/tombailey/dueue/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dueue",
		Short: "Dueue durable message queue CLI",
		Long:  "Dueue is a durable message queue served over HTTP. This CLI runs the server and talks to a running instance.",
	}

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newReceiveCommand())
	rootCmd.AddCommand(newAckCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the dueue server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfgpkg.FromEnv(&cfg); err != nil {
				return fmt.Errorf("read env: %w", err)
			}

			// Flags win over file and env.
			if v, _ := cmd.Flags().GetString("http"); cmd.Flags().Changed("http") {
				cfg.HTTPAddr = v
			}
			if v, _ := cmd.Flags().GetString("engine"); cmd.Flags().Changed("engine") {
				cfg.Engine = v
			}
			if v, _ := cmd.Flags().GetString("data-dir"); cmd.Flags().Changed("data-dir") {
				cfg.Pebble.DataDir = v
			}
			if v, _ := cmd.Flags().GetString("fsync"); cmd.Flags().Changed("fsync") {
				cfg.Pebble.Fsync = v
			}
			if v, _ := cmd.Flags().GetInt("fsync-interval-ms"); cmd.Flags().Changed("fsync-interval-ms") {
				cfg.Pebble.FsyncIntervalMs = v
			}
			if v, _ := cmd.Flags().GetDuration("ack-deadline"); cmd.Flags().Changed("ack-deadline") {
				cfg.AckDeadline = v
			}
			if v, _ := cmd.Flags().GetString("log-level"); cmd.Flags().Changed("log-level") {
				cfg.Log.Level = v
			}
			if v, _ := cmd.Flags().GetString("log-format"); cmd.Flags().Changed("log-format") {
				cfg.Log.Format = v
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	startCmd.Flags().String("config", "", "Path to a JSON or YAML config file")
	startCmd.Flags().String("http", ":8080", "HTTP listen address")
	startCmd.Flags().String("engine", cfgpkg.EnginePebble, "Durability engine: memory|pebble|postgres|docstore|supabase")
	startCmd.Flags().String("data-dir", "", "Pebble data directory (default under the user's home)")
	startCmd.Flags().String("fsync", "", "Pebble fsync mode: always|interval|never")
	startCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	startCmd.Flags().Duration("ack-deadline", 0, "Default acknowledgement deadline (e.g. 5m)")
	startCmd.Flags().String("log-level", os.Getenv("DUEUE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", os.Getenv("DUEUE_LOG_FORMAT"), "Log format: text|json")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <queue> <message>",
		Short: "Publish a message to a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			body := map[string]any{"message": args[1]}
			if ttl > 0 {
				body["expiry"] = time.Now().Add(ttl).Unix()
			}
			b, _ := json.Marshal(body)
			resp, err := http.Post(server+"/queue/"+url.PathEscape(args[0]), "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			defer drain(resp)
			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("publish failed: %s", resp.Status)
			}
			fmt.Println("published")
			return nil
		},
	}
	cmd.Flags().String("server", defaultServer(), "Server base URL")
	cmd.Flags().Duration("ttl", 0, "Discard the message this long after publishing (e.g. 10m)")
	return cmd
}

func newReceiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive <queue>",
		Short: "Receive the next message from a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			subscriber, _ := cmd.Flags().GetString("subscriber")
			deadline, _ := cmd.Flags().GetDuration("deadline")

			q := url.Values{"subscriberId": {subscriber}}
			if deadline > 0 {
				q.Set("acknowledgementDeadline", fmt.Sprintf("%d", time.Now().Add(deadline).Unix()))
			}
			resp, err := http.Get(server + "/queue/" + url.PathEscape(args[0]) + "?" + q.Encode())
			if err != nil {
				return err
			}
			defer drain(resp)
			switch resp.StatusCode {
			case http.StatusNotFound:
				fmt.Println("no message available")
				return nil
			case http.StatusOK:
				var body map[string]string
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					return err
				}
				fmt.Printf("id: %s\nmessage: %s\n", body["id"], body["message"])
				return nil
			default:
				return fmt.Errorf("receive failed: %s", resp.Status)
			}
		},
	}
	cmd.Flags().String("server", defaultServer(), "Server base URL")
	cmd.Flags().String("subscriber", "cli", "Subscriber id")
	cmd.Flags().Duration("deadline", 0, "Acknowledgement deadline (e.g. 30s; server default if unset)")
	return cmd
}

func newAckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ack <queue> <message-id>",
		Short: "Acknowledge a received message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			subscriber, _ := cmd.Flags().GetString("subscriber")

			u := server + "/queue/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1]) +
				"?subscriberId=" + url.QueryEscape(subscriber)
			req, err := http.NewRequest(http.MethodDelete, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer drain(resp)
			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("acknowledge failed: %s", resp.Status)
			}
			fmt.Println("acknowledged")
			return nil
		},
	}
	cmd.Flags().String("server", defaultServer(), "Server base URL")
	cmd.Flags().String("subscriber", "cli", "Subscriber id")
	return cmd
}

func defaultServer() string {
	if v := os.Getenv("DUEUE_SERVER"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
