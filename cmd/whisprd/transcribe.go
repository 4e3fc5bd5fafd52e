package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTranscribeCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "transcribe <model-id> <audio-file>",
		Short: "Transcribe an audio file with a local speech model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			resp, err := m.Transcribe(cmd.Context(), args[0], args[1], lang)
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "", "language hint (empty = autodetect)")
	return cmd
}
