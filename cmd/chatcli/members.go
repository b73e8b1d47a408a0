package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/realtime-chatroom/client"
)

func init() {
	rootCmd.AddCommand(membersCmd, banCmd, unbanCmd)
	membersCmd.Flags().Bool("banned", false, "List banned users instead")
}

var membersCmd = &cobra.Command{
	Use:   "members <room-id>",
	Short: "List the members of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		banned, _ := cmd.Flags().GetBool("banned")
		return run(func(ctx context.Context, c *client.Client) error {
			list := c.Members
			if banned {
				list = c.Bans
			}
			members, err := list(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(members)
			}
			for _, m := range members {
				fmt.Printf("%-24s  %s\n", m.UserID, m.Handle)
			}
			return nil
		})
	},
}

var banCmd = &cobra.Command{
	Use:   "ban <room-id> <user-id>",
	Short: "Ban a member from a room you own",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.BanMember(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Banned %s.\n", args[1])
			return nil
		})
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban <room-id> <user-id>",
	Short: "Lift a ban",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, c *client.Client) error {
			if err := c.UnbanMember(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Unbanned %s.\n", args[1])
			return nil
		})
	},
}
