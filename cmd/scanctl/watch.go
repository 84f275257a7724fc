package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"shelfwatch/internal/fanout"
	"shelfwatch/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func watchCmd(opts *options) *cobra.Command {
	var (
		resources []string
		count     int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live session, reservation and checkout events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return errors.New("--token (or " + EnvToken + ") is required to watch")
			}
			return watch(ctxOrBackground(cmd.Context()), opts, resources, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&resources, "resource", nil, "resource ids to follow (default: all)")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0: run until interrupted)")
	return cmd
}

func watch(ctx context.Context, opts *options, resources []string, count int, out io.Writer) error {
	wsURL, err := websocketURL(opts.server)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.token)
	dialer := websocket.Dialer{HandshakeTimeout: opts.timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s: %s", wsURL, resp.Status)
		}
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	if len(resources) == 0 {
		resources = []string{""}
	}
	for _, id := range resources {
		if err := conn.WriteJSON(model.SubscriptionMessage{Op: fanout.OpSubscribe, ResourceID: id}); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	received := 0
	for {
		var msg fanout.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		switch msg.Type {
		case fanout.ReplySubscribed:
			target := msg.ResourceID
			if target == "" {
				target = "all resources"
			}
			fmt.Fprintf(out, "watching %s\n", target)
		case fanout.ReplyError:
			return fmt.Errorf("tracker rejected request: %s", msg.Message)
		case fanout.ReplyEvent:
			if msg.Event == nil {
				continue
			}
			fmt.Fprintf(out, "%s %s %s %s\n", msg.Event.Timestamp, msg.Event.Type, msg.Event.Action, msg.Event.ResourceID)
			received++
			if count > 0 && received >= count {
				return nil
			}
		}
	}
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
