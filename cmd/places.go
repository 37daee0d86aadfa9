package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	placesDelineation string
	placesFile        string
)

var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "List the place names a batch would process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("places"); err != nil {
			return err
		}
		places, err := loadPlaces(placesFile, placesDelineation, 0)
		if err != nil {
			return err
		}
		for _, p := range places {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	placesCmd.Flags().StringVar(&placesDelineation, "delineation", "", "CBSA delineation spreadsheet (.xlsx)")
	placesCmd.Flags().StringVar(&placesFile, "places", "", "file with one place name per line")
	placesCmd.MarkFlagsMutuallyExclusive("places", "delineation")
	placesCmd.MarkFlagsOneRequired("places", "delineation")
	rootCmd.AddCommand(placesCmd)
}
