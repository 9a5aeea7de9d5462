package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devricklin/feishu-agent-bridge/internal/api"
)

const defaultAddr = "127.0.0.1:9876"

var bridgeAddr string

func addrFlag(cmd *cobra.Command) {
	addr := os.Getenv("BRIDGE_HTTP_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	cmd.Flags().StringVar(&bridgeAddr, "addr", addr, "address of a running bridge")
}

// replyCmd lets exec agents answer through a running bridge
func replyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reply <endpoint> <text...>",
		Short: "Post a reply to the conversation an endpoint points at",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(bridgeAddr)
			return client.Reply(cmd.Context(), args[0], strings.Join(args[1:], " "))
		},
	}
	addrFlag(cmd)
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <endpoint>",
		Short: "Clear the typing indicator without replying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.NewClient(bridgeAddr).Complete(cmd.Context(), args[0])
		},
	}
	addrFlag(cmd)
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the runtime status of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := api.NewClient(bridgeAddr).Status(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	addrFlag(cmd)
	return cmd
}
