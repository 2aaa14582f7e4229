package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openrescue/roadsync/internal/engine"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/ui"
)

var requestCmd = &cobra.Command{
	Use:   "request <issue description>",
	Short: "File a new assistance request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}

		vehicleMake, _ := cmd.Flags().GetString("make")
		vehicleModel, _ := cmd.Flags().GetString("model")
		year, _ := cmd.Flags().GetString("year")
		plate, _ := cmd.Flags().GetString("plate")
		phone, _ := cmd.Flags().GetString("phone")
		address, _ := cmd.Flags().GetString("address")

		in := engine.CreateRequestInput{
			Vehicle:          model.Vehicle{Make: vehicleMake, Model: vehicleModel, Year: year, Plate: plate},
			IssueDescription: strings.Join(args, " "),
			Contact:          model.Contact{Name: actor.Name, Phone: phone, Email: actor.Email},
		}
		if address != "" {
			in.Location = &model.Location{Address: address}
		}

		req, err := a.engine.CreateRequest(cmd.Context(), actor, in)
		if err != nil {
			return err
		}
		fmt.Println(ui.RenderPass("Request filed: " + req.ID))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List open requests available to claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}
		reqs, err := a.engine.ListOpen(cmd.Context(), actor)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Println(ui.RenderDim("No open requests."))
			return nil
		}
		printRequestTable(reqs)
		return nil
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List your current assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}
		reqs, err := a.engine.ListMine(cmd.Context(), actor)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Println(ui.RenderDim("No assignments."))
			return nil
		}
		printRequestTable(reqs)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one request with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}
		req, err := a.engine.Get(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		printRequestDetail(req)
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <request-id>",
	Short: "Claim an open request",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("Claimed", func(a *app, cmd *cobra.Command, actor *model.Profile, id string) (*model.Request, error) {
		return a.engine.Claim(cmd.Context(), actor, id)
	}),
}

var startCmd = &cobra.Command{
	Use:   "start <request-id>",
	Short: "Start work on your assigned request",
	Args:  cobra.ExactArgs(1),
	RunE: transitionRunE("Started", func(a *app, cmd *cobra.Command, actor *model.Profile, id string) (*model.Request, error) {
		return a.engine.Start(cmd.Context(), actor, id)
	}),
}

var completeCmd = &cobra.Command{
	Use:   "complete <request-id>",
	Short: "Complete your in-progress request",
	Args:  cobra.ExactArgs(1),
	RunE: transitionRunE("Completed", func(a *app, cmd *cobra.Command, actor *model.Profile, id string) (*model.Request, error) {
		note, _ := cmd.Flags().GetString("note")
		return a.engine.Complete(cmd.Context(), actor, id, note)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel a request (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: transitionRunE("Cancelled", func(a *app, cmd *cobra.Command, actor *model.Profile, id string) (*model.Request, error) {
		reason, _ := cmd.Flags().GetString("reason")
		return a.engine.Cancel(cmd.Context(), actor, id, reason)
	}),
}

// transitionRunE wires the shared open/authenticate/transition/report
// flow behind each lifecycle command.
func transitionRunE(verb string, fn func(a *app, cmd *cobra.Command, actor *model.Profile, id string) (*model.Request, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.auth.CurrentActor(cmd.Context())
		if err != nil {
			return err
		}
		req, err := fn(a, cmd, actor, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%s)\n", ui.RenderPass(verb), req.ID, ui.StatusBadge(req.Status))
		return nil
	}
}

// printRequestTable renders a compact listing.
func printRequestTable(reqs []*model.Request) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, ui.RenderHeader("ID\tSTATUS\tVEHICLE\tISSUE\tCREATED"))
	for _, req := range reqs {
		vehicle := strings.TrimSpace(req.Vehicle.Make + " " + req.Vehicle.Model)
		if vehicle == "" {
			vehicle = "-"
		}
		issue := req.IssueDescription
		if len(issue) > 48 {
			issue = issue[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			req.ID, ui.StatusBadge(req.Status), vehicle, issue,
			req.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

// printRequestDetail renders one request with notes.
func printRequestDetail(req *model.Request) {
	fmt.Printf("%s %s\n", ui.RenderHeader("Request:"), ui.RenderAccent(req.ID))
	fmt.Printf("%s %s\n", ui.RenderHeader("Status:"), ui.StatusBadge(req.Status))
	fmt.Printf("%s %s %s %s\n", ui.RenderHeader("Vehicle:"), req.Vehicle.Make, req.Vehicle.Model, req.Vehicle.Year)
	fmt.Printf("%s %s\n", ui.RenderHeader("Issue:"), req.IssueDescription)
	if req.Contact.Name != "" || req.Contact.Phone != "" {
		fmt.Printf("%s %s %s\n", ui.RenderHeader("Contact:"), req.Contact.Name, req.Contact.Phone)
	}
	if req.Location != nil && req.Location.Address != "" {
		fmt.Printf("%s %s\n", ui.RenderHeader("Location:"), req.Location.Address)
	}
	if req.Assigned() {
		assignee := req.AssignedMechanicEmail
		if assignee == "" {
			assignee = req.AssignedMechanicID
		}
		fmt.Printf("%s %s\n", ui.RenderHeader("Assigned to:"), assignee)
	}
	if req.CompletedAt != nil {
		fmt.Printf("%s %s\n", ui.RenderHeader("Completed:"), req.CompletedAt.Local().Format("2006-01-02 15:04"))
	}

	if len(req.Notes) > 0 {
		fmt.Println()
		fmt.Println(ui.RenderHeader("Notes:"))
		for _, n := range req.Notes {
			fmt.Printf("  %s %s: %s\n",
				ui.RenderDim(n.At.Local().Format("2006-01-02 15:04")),
				ui.RenderAccent(n.By), n.Text)
		}
	}
}

func init() {
	requestCmd.Flags().String("make", "", "vehicle make")
	requestCmd.Flags().String("model", "", "vehicle model")
	requestCmd.Flags().String("year", "", "vehicle year")
	requestCmd.Flags().String("plate", "", "license plate")
	requestCmd.Flags().String("phone", "", "contact phone")
	requestCmd.Flags().String("address", "", "breakdown location")

	completeCmd.Flags().String("note", "", "completion note for the audit trail")
	cancelCmd.Flags().String("reason", "", "cancellation reason for the audit trail")

	rootCmd.AddCommand(requestCmd, listCmd, mineCmd, showCmd, claimCmd, startCmd, completeCmd, cancelCmd)
}
