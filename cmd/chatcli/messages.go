package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/realtime-chatroom/client"
	"github.com/example/realtime-chatroom/domain/chat"
)

func init() {
	rootCmd.AddCommand(sendCmd, deleteMessageCmd, watchCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <room-id> <message...>",
	Short: "Send a message to a room",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			msg, err := c.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(msg)
			}
			fmt.Printf("Sent (%s)\n", msg.ID)
			return nil
		})
	},
}

var deleteMessageCmd = &cobra.Command{
	Use:   "delete-message <room-id> <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.DeleteMessage(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Message deleted.")
			return nil
		})
	},
}

// watchCmd follows a room live. Lines typed on stdin are sent as messages.
var watchCmd = &cobra.Command{
	Use:   "watch <room-id>",
	Short: "Follow a room live and chat from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		view, err := c.OpenRoom(ctx, args[0])
		if err != nil {
			return friendly(err)
		}
		defer view.Close()

		if room, ok := view.Room(); ok {
			fmt.Printf("# %s (%d members)\n", room.Name, len(view.Members()))
		}
		printer := &feedPrinter{seen: make(map[string]bool)}
		printer.print(view.Messages())

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-view.Lost():
				fmt.Println("* You no longer have access to this room.")
				return nil
			case <-view.Changes():
				if _, ok := view.Room(); !ok {
					// Invalidated: refetch before printing.
					if err := view.Refresh(ctx); err != nil {
						fmt.Fprintf(os.Stderr, "refresh failed: %v\n", friendly(err))
					}
				}
				printer.print(view.Messages())
			case line, ok := <-lines:
				if !ok {
					lines = nil
					continue
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				go func() {
					if _, err := c.SendMessage(ctx, args[0], line); err != nil {
						fmt.Fprintf(os.Stderr, "send failed: %v\n", friendly(err))
					}
				}()
			}
		}
	},
}

// feedPrinter prints each confirmed message once.
type feedPrinter struct {
	seen map[string]bool
}

func (p *feedPrinter) print(feed []chat.Message) {
	for _, m := range feed {
		if m.Pending || p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.AuthorHandle, m.Content)
	}
}
