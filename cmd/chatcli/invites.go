package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/realtime-chatroom/client"
	"github.com/example/realtime-chatroom/domain/chat"
)

func init() {
	rootCmd.AddCommand(inviteCmd, invitesCmd, acceptCmd, declineCmd, revokeCmd)
	invitesCmd.Flags().String("room", "", "List the pending invites of a room you own instead")
}

var inviteCmd = &cobra.Command{
	Use:   "invite <room-id> <user-id>",
	Short: "Invite a user to a room you own",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			invite, err := c.InviteUser(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(invite)
			}
			fmt.Printf("Invited %s.\n", invite.InviteeID)
			return nil
		})
	},
}

var invitesCmd = &cobra.Command{
	Use:   "invites",
	Short: "List your pending invites",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, _ := cmd.Flags().GetString("room")
		return run(func(ctx context.Context, c *client.Client) error {
			list := c.Invites
			if roomID != "" {
				list = func(ctx context.Context) ([]chat.Invite, error) { return c.RoomInvites(ctx, roomID) }
			}
			invites, err := list(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(invites)
			}
			if len(invites) == 0 {
				fmt.Println("No pending invites.")
				return nil
			}
			for _, inv := range invites {
				if roomID != "" {
					fmt.Printf("%-24s  %s\n", inv.InviteeID, inv.InviteeHandle)
					continue
				}
				fmt.Printf("%-36s  %s\n", inv.RoomID, inv.RoomName)
			}
			return nil
		})
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <room-id>",
	Short: "Accept an invite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			room, err := c.AcceptInvite(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Joined %s (%s)\n", room.Name, room.ID)
			return nil
		})
	},
}

var declineCmd = &cobra.Command{
	Use:   "decline <room-id>",
	Short: "Decline an invite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.DeclineInvite(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("Invite declined.")
			return nil
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <room-id> <user-id>",
	Short: "Revoke an invite you sent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.RevokeInvite(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Invite revoked.")
			return nil
		})
	},
}
