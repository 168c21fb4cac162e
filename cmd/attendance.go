package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/kasir/internal/models"
	"github.com/marcus/kasir/internal/output"
	kasirsync "github.com/marcus/kasir/internal/sync"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:     "attendance",
	Aliases: []string{"att"},
	Short:   "Staff clock in and clock out",
	GroupID: "staff",
}

var clockInCmd = &cobra.Command{
	Use:   "clock-in <user>",
	Short: "Clock a staff member in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		in := kasirsync.ClockInInput{UserID: args[0]}
		in.UserName, _ = cmd.Flags().GetString("name")
		in.Photo, _ = cmd.Flags().GetString("photo")
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			in.Location = &models.GeoPoint{Lat: lat, Lng: lng}
		}

		a, err := t.ClockIn(cmd.Context(), in)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("%s clocked in at %s", displayName(a), a.ClockIn.Local().Format("15:04"))
		return nil
	},
}

var clockOutCmd = &cobra.Command{
	Use:   "clock-out <user>",
	Short: "Clock a staff member out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		a, err := t.ClockOut(cmd.Context(), args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		worked := a.ClockOut.Sub(a.ClockIn).Round(time.Minute)
		output.Success("%s clocked out after %s", displayName(a), worked)
		return nil
	},
}

var attendanceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List attendance records of the active branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := mustEngine(cmd)
		if err != nil {
			return err
		}
		recs := t.Attendance()
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(recs)
		}
		if len(recs) == 0 {
			fmt.Println("No attendance records")
			return nil
		}
		for _, a := range recs {
			out := "working"
			if a.ClockOut != nil {
				out = a.ClockOut.Local().Format("15:04")
			}
			fmt.Printf("%-16s %s  in %s  out %-8s %s\n",
				displayName(a),
				a.ClockIn.Local().Format("2006-01-02"),
				a.ClockIn.Local().Format("15:04"),
				out,
				output.SyncMark(a.Dirty))
		}
		return nil
	},
}

func displayName(a models.Attendance) string {
	if a.UserName != "" {
		return a.UserName
	}
	return a.UserID
}

func init() {
	clockInCmd.Flags().String("name", "", "Display name")
	clockInCmd.Flags().String("photo", "", "Photo reference (url or path)")
	clockInCmd.Flags().Float64("lat", 0, "Latitude of the clock-in")
	clockInCmd.Flags().Float64("lng", 0, "Longitude of the clock-in")
	attendanceListCmd.Flags().Bool("json", false, "JSON output")

	attendanceCmd.AddCommand(clockInCmd, clockOutCmd, attendanceListCmd)
	rootCmd.AddCommand(attendanceCmd)
}
