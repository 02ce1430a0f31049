// Package main provides a simple CLI client for the agent stream.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/transport/ws"
)

// Client represents a WebSocket client.
type Client struct {
	conn *websocket.Conn
	done chan struct{}
	seq  int
}

// NewClient connects to the stream of one project.
func NewClient(server, projectID, userID string) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse server address: %w", err)
	}
	u.Path = "/v1/projects/" + url.PathEscape(projectID) + "/stream"
	u.RawQuery = url.Values{"user_id": {userID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn, done: make(chan struct{})}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

func (c *Client) nextRequestID() string {
	c.seq++
	return fmt.Sprintf("req_%d", c.seq)
}

// SendMessage starts a turn.
func (c *Client) SendMessage(text string) error {
	return c.conn.WriteJSON(ws.Frame{
		Type:      ws.TypeSendMessage,
		RequestID: c.nextRequestID(),
		Ts:        time.Now().UnixMilli(),
		Text:      text,
	})
}

// Resolve approves or declines a pending plan.
func (c *Client) Resolve(confirmationID string, approved bool) error {
	return c.conn.WriteJSON(ws.Frame{
		Type:           ws.TypeResolveConfirmation,
		RequestID:      c.nextRequestID(),
		Ts:             time.Now().UnixMilli(),
		ConfirmationID: confirmationID,
		Approved:       &approved,
	})
}

// ReadFrames reads and prints frames from the server.
func (c *Client) ReadFrames() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
			}
			return
		}

		var f ws.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("Unmarshal error: %v", err)
			continue
		}
		printFrame(f)
	}
}

func printFrame(f ws.Frame) {
	switch f.Type {
	case ws.TypeHello:
		fmt.Printf("\nFollowing project %s\n", f.ProjectID)
	case ws.TypeMessage:
		if f.Message == nil || f.Message.Role == domain.RoleUser {
			return
		}
		fmt.Printf("\n%s\n", f.Message.Content)
		if md := f.Message.Metadata; md != nil && md.Type == domain.MetadataConfirmationRequest && md.Confirmation != nil {
			fmt.Printf("(approve with /approve %s, decline with /decline %s)\n",
				md.Confirmation.ConfirmationID, md.Confirmation.ConfirmationID)
		}
	case ws.TypeAck:
		if f.Outcome != "" {
			fmt.Printf("[%s] outcome: %s\n", f.RequestID, f.Outcome)
		}
	case ws.TypeError:
		fmt.Printf("\n[%s] error %s: %s\n", f.RequestID, f.Code, f.Error)
	default:
		fmt.Printf("\n[%s] %+v\n", f.Type, f)
	}
	fmt.Print("> ")
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "Agent server address")
	projectID := flag.String("project", "", "Project ID")
	userID := flag.String("user", os.Getenv("USER"), "User ID")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *projectID == "" || *userID == "" {
		log.Fatal("-project and -user are required")
	}

	client, err := NewClient(*addr, *projectID, *userID)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("Type a message and press Enter to send.")
	fmt.Println("Commands: /approve <id>, /decline <id>, /quit")

	go client.ReadFrames()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		_ = client.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case input == "":
			continue
		case input == "/quit":
			fmt.Println("Bye!")
			return
		case strings.HasPrefix(input, "/approve "):
			err = client.Resolve(strings.TrimSpace(strings.TrimPrefix(input, "/approve ")), true)
		case strings.HasPrefix(input, "/decline "):
			err = client.Resolve(strings.TrimSpace(strings.TrimPrefix(input, "/decline ")), false)
		default:
			err = client.SendMessage(input)
		}
		if err != nil {
			log.Printf("Send error: %v", err)
		}
	}
}
