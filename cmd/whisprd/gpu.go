package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGpuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gpu",
		Short: "Show the resolved acceleration capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			st := m.GpuStatus(cmd.Context())
			fmt.Printf("variant:    %s\n", st.Variant)
			fmt.Printf("preference: %s\n", st.Preference)
			fmt.Printf("probed:     %v\n", st.Probed)

			conv := m.ConverterStatus(cmd.Context())
			if conv.Available {
				fmt.Printf("converter:  %s (%s)\n", conv.Path, conv.Version)
			} else {
				fmt.Printf("converter:  unavailable (%s)\n", conv.Error)
			}
			return nil
		},
	}
}
