package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/mcdev12/staffdraft/go/internal/draft/gateway"
)

type adminFlags struct {
	url string
	key string
}

func newAdminCmd() *cobra.Command {
	flags := &adminFlags{}
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Control a running draft server",
	}
	cmd.PersistentFlags().StringVar(&flags.url, "url", "http://localhost:8080", "draft server base URL")
	cmd.PersistentFlags().StringVar(&flags.key, "key", os.Getenv("DRAFT_ADMIN_KEY"), "admin key (defaults to $DRAFT_ADMIN_KEY)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the draft",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := flags.client().StartDraft(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "draft started")
				return nil
			},
		},
		&cobra.Command{
			Use:   "end",
			Short: "End the draft",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := flags.client().EndDraft(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "draft ended")
				return nil
			},
		},
		&cobra.Command{
			Use:   "kick <participant-id>",
			Short: "Remove a participant from the draft",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := flags.client().KickParticipant(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "kicked %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "state",
			Short: "Print the current draft state as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				state, err := flags.client().GetDraftState(cmd.Context())
				if err != nil {
					return err
				}
				out, err := protojson.MarshalOptions{Multiline: true}.Marshal(state)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			},
		},
	)
	return cmd
}

func (f *adminFlags) client() *gateway.AdminClient {
	return gateway.NewAdminClient(http.DefaultClient, f.url, f.key)
}
