package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/realtime-chatroom/client"
)

var createRoomDescription string

func init() {
	rootCmd.AddCommand(roomsCmd, createRoomCmd, deleteRoomCmd, leaveCmd, linkCmd, joinCmd)
	createRoomCmd.Flags().StringVarP(&createRoomDescription, "description", "d", "", "Room description")
	linkCmd.Flags().Bool("regenerate", false, "Replace the link with a new token")
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms you have joined",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			rooms, err := c.Rooms(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rooms)
			}
			if len(rooms) == 0 {
				fmt.Println("No rooms.")
				return nil
			}
			for _, r := range rooms {
				owner := ""
				if r.OwnerID == c.UserID() {
					owner = " (owner)"
				}
				fmt.Printf("%-36s  %s%s\n", r.ID, r.Name, owner)
			}
			return nil
		})
	},
}

var createRoomCmd = &cobra.Command{
	Use:   "create-room <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			room, err := c.CreateRoom(ctx, args[0], createRoomDescription)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(room)
			}
			fmt.Printf("Created room %s (%s)\n", room.Name, room.ID)
			return nil
		})
	},
}

var deleteRoomCmd = &cobra.Command{
	Use:   "delete-room <room-id>",
	Short: "Delete a room you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.DeleteRoom(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("Room deleted.")
			return nil
		})
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave <room-id>",
	Short: "Leave a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.LeaveRoom(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("Left the room.")
			return nil
		})
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <room-id>",
	Short: "Show the invite link token of a room you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regenerate, _ := cmd.Flags().GetBool("regenerate")
		return run(func(ctx context.Context, c *client.Client) error {
			fetch := c.InviteLink
			if regenerate {
				fetch = c.RegenerateInviteLink
			}
			link, err := fetch(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(link)
			}
			fmt.Println(link.Token)
			return nil
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <token>",
	Short: "Join a room with an invite link token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			room, err := c.JoinByLink(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Joined %s (%s)\n", room.Name, room.ID)
			return nil
		})
	},
}
