package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrescue/roadsync/internal/ui"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your mechanic profile",
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update your display name and service area",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		serviceArea, _ := cmd.Flags().GetString("service-area")
		if name == "" && serviceArea == "" {
			return fmt.Errorf("nothing to update: pass --name or --service-area")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}
		if name == "" {
			name = actor.Name
		}
		if serviceArea == "" {
			serviceArea = actor.ServiceArea
		}

		if err := a.engine.UpdateMyProfile(cmd.Context(), actor, name, serviceArea); err != nil {
			return err
		}
		fmt.Println(ui.RenderPass("Profile updated"))
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("name", "", "display name")
	profileSetCmd.Flags().String("service-area", "", "service area")

	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
