package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrcode/mealdose/internal/models"
)

var (
	doseChannel   string
	preBolusUnits string
	notEaten      string
)

// parseAmount converts user numeric input, defaulting to 0 on anything
// unparseable so malformed input never reaches the engine.
func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid number %q, using 0\n", s)
		return 0
	}
	return v
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current meal, registration totals and treatment status",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := service.Snapshot()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Status:           %s\n", snap.Status)
		fmt.Fprintf(out, "Planned:          %.1f g carbs, %.1f g fat, %.1f g protein\n",
			snap.Planned.TotalCarbs, snap.Planned.TotalFat, snap.Planned.TotalProtein)
		fmt.Fprintf(out, "Registered:       %.1f g carbs, %.1f g fat, %.1f g protein, %.2f U\n",
			snap.State.RegisteredCarbs, snap.State.RegisteredFat,
			snap.State.RegisteredProtein, snap.State.RegisteredBolus)
		fmt.Fprintf(out, "Remaining:        %.1f g carbs, %.1f g fat, %.1f g protein, %.2f U\n",
			snap.Remaining.Carbs, snap.Remaining.Fat, snap.Remaining.Protein, snap.Remaining.Bolus)
		fmt.Fprintf(out, "Carb ratio:       %.2f g/U\n", snap.CarbRatio)
		fmt.Fprintf(out, "Start-dose cap:   %.1f g\n", snap.StartDose)
		if snap.Override.Active {
			fmt.Fprintf(out, "Override:         x%.2f until %s\n",
				snap.Override.Factor, snap.Override.ExpiresAt.Format("15:04"))
		}
		if snap.State.MealDate != nil {
			fmt.Fprintf(out, "Meal started:     %s\n", snap.State.MealDate.Format("15:04"))
		}
		return nil
	},
}

var foodsCmd = &cobra.Command{
	Use:   "foods",
	Short: "Manage the food catalog",
}

var foodsAddCmd = &cobra.Command{
	Use:   "add [name] [carbs] [fat] [protein]",
	Short: "Add a food (nutrients per 100 g, or per unit with --per-unit)",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		perUnit, _ := cmd.Flags().GetBool("per-unit")
		item := models.FoodItem{
			Name:      args[0],
			Carbs:     parseAmount(args[1]),
			Fat:       parseAmount(args[2]),
			Protein:   parseAmount(args[3]),
			IsPerUnit: perUnit,
		}
		id, err := store.AddFood(item)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added food %d: %s\n", id, item.Name)
		return nil
	},
}

var foodsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the food catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		foods, err := store.ListFoods()
		if err != nil {
			return err
		}
		for _, f := range foods {
			basis := "per 100g"
			if f.IsPerUnit {
				basis = "per unit"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-24s %6.1fc %6.1ff %6.1fp  (%s)\n",
				f.ID, f.Name, f.Carbs, f.Fat, f.Protein, basis)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compose the meal from catalog foods",
}

var planAddCmd = &cobra.Command{
	Use:   "add [food-id] [portion]",
	Short: "Add a food portion (grams or units) to the meal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		foodID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid food id %q", args[0])
		}
		if _, err := store.GetFood(foodID); err != nil {
			return err
		}
		rowID, err := store.AddMealRow(foodID, parseAmount(args[1]), parseAmount(notEaten))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added row %d\n", rowID)
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the meal rows and planned totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := store.MealRows()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range rows {
			fmt.Fprintf(out, "%4d  %-24s %6.1f served %6.1f left  -> %5.1f g carbs\n",
				r.ID, r.Food.Name, r.PortionServed, r.NotEaten, r.NetCarbs())
		}
		planned := models.PlannedMealFromRows(rows)
		fmt.Fprintf(out, "total: %.1f g carbs, %.1f g fat, %.1f g protein\n",
			planned.TotalCarbs, planned.TotalFat, planned.TotalProtein)
		return nil
	},
}

var planLeftCmd = &cobra.Command{
	Use:   "left [row-id] [amount]",
	Short: "Record the part of a row's portion that was not eaten",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rowID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid row id %q", args[0])
		}
		return store.SetNotEaten(rowID, parseAmount(args[1]))
	},
}

var planRemoveCmd = &cobra.Command{
	Use:   "remove [row-id]",
	Short: "Remove a row from the meal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rowID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid row id %q", args[0])
		}
		return store.DeleteMealRow(rowID)
	},
}

var doseCmd = &cobra.Command{
	Use:   "dose [pre|start|remaining]",
	Short: "Submit a dose step through a confirmation channel",
	Long: `Submits one dose step for the active meal:

  pre        a pre-bolus of --units insulin, before any food is logged
  start      the capped start dose computed from the planned carbs
  remaining  the top-up dose covering everything still owed

The request is sent through --channel and the totals are updated only on a
confirmed outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind models.DoseKind
		switch args[0] {
		case "pre":
			kind = models.DosePreBolus
		case "start":
			kind = models.DoseStart
		case "remaining":
			kind = models.DoseRemaining
		default:
			return fmt.Errorf("unknown dose step %q", args[0])
		}

		res, err := service.SubmitDose(cmd.Context(), kind, doseChannel, parseAmount(preBolusUnits))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Capped {
			fmt.Fprintf(out, "warning: request clamped to safety caps\n")
		}
		if res.Registered {
			fmt.Fprintf(out, "registered %.1f g carbs, %.2f U insulin\n",
				res.Amounts.Carbs, res.Amounts.Bolus)
		} else {
			fmt.Fprintf(out, "not registered (%s %s)\n", res.Outcome.Kind, res.Outcome.Reason)
		}
		return nil
	},
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Re-submit the last bolus sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := service.Resend(cmd.Context(), models.DosePreBolus, doseChannel)
		if err != nil {
			return err
		}
		if res.Registered {
			fmt.Fprintf(cmd.OutOrStdout(), "re-registered %.2f U insulin\n", res.Amounts.Bolus)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "not registered (%s)\n", res.Outcome.Kind)
		}
		return nil
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override [on|preset|off]",
	Short: "Manage the temporary carb-ratio override",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "on":
			percent := 130.0
			if len(args) > 1 {
				percent = parseAmount(args[1])
			}
			if err := service.ActivateOverride(percent); err != nil {
				return err
			}
		case "preset":
			if err := service.ActivatePresetOverride(); err != nil {
				return err
			}
		case "off":
			if !service.CancelOverride() {
				fmt.Fprintln(cmd.OutOrStdout(), "no override active")
				return nil
			}
		default:
			return fmt.Errorf("unknown override action %q", args[0])
		}
		session := service.OverrideSession()
		if session.Active {
			fmt.Fprintf(cmd.OutOrStdout(), "override x%.2f until %s\n",
				session.Factor, session.ExpiresAt.Format("15:04"))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "override off")
		}
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the hourly carb-ratio and start-dose tables",
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set [hour] [carb-ratio] [start-dose]",
	Short: "Set the schedule slot for an hour (0 keeps the running value)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		hour, err := strconv.Atoi(args[0])
		if err != nil || hour < 0 || hour > 23 {
			return fmt.Errorf("invalid hour %q", args[0])
		}
		return store.SetScheduleSlot(hour, parseAmount(args[1]), parseAmount(args[2]))
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured schedule slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := store.Schedule()
		if err != nil {
			return err
		}
		for hour := 0; hour < 24; hour++ {
			if slot, ok := table.Slot(hour); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%02d:00  ratio %5.2f  start %5.1f  (edited %s)\n",
					hour, slot.CarbRatio, slot.StartDose, slot.LastEdited.Format("2006-01-02"))
			}
		}
		return nil
	},
}

var endMealCmd = &cobra.Command{
	Use:   "end-meal",
	Short: "End the active meal: cancel pending doses and reset the totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := service.EndMeal(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "meal ended")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its background timers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info("engine running")
		return service.Run(ctx)
	},
}

func init() {
	foodsAddCmd.Flags().Bool("per-unit", false, "nutrients are per unit instead of per 100 g")
	foodsCmd.AddCommand(foodsAddCmd, foodsListCmd)

	planAddCmd.Flags().StringVar(&notEaten, "not-eaten", "", "portion that will not be eaten")
	planCmd.AddCommand(planAddCmd, planListCmd, planLeftCmd, planRemoveCmd)

	doseCmd.Flags().StringVar(&doseChannel, "channel", "", "delivery channel (manual, webhook, sms)")
	doseCmd.Flags().StringVar(&preBolusUnits, "units", "", "insulin units for the pre-bolus step")
	resendCmd.Flags().StringVar(&doseChannel, "channel", "", "delivery channel (manual, webhook, sms)")
}
