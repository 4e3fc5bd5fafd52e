package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisprd/pkg/types"
)

func newInferCmd() *cobra.Command {
	var (
		prompt      string
		maxTokens   int
		temperature float64
	)
	cmd := &cobra.Command{
		Use:   "infer <model-id>",
		Short: "Run a text completion against a local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			resp, err := m.Infer(cmd.Context(), types.InferRequest{
				Model:       args[0],
				Prompt:      prompt,
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "prompt text")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 256, "maximum tokens to generate")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "sampling temperature")
	return cmd
}
