// Plant Care Database CLI Tool
// Provides command-line access to the plantcare field store
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/database"
)

var (
	dbPath  string
	limit   int
	rootCmd = &cobra.Command{
		Use:          "plantcare-db",
		Short:        "Plant Care database CLI",
		Long:         "Command-line tool for inspecting and managing the plantcare field store.",
		SilenceUsage: true,
	}

	greenhousesCmd = &cobra.Command{
		Use:   "greenhouses",
		Short: "List all greenhouses",
		Args:  cobra.NoArgs,
		RunE:  listGreenhouses,
	}

	fieldsCmd = &cobra.Command{
		Use:   "fields [greenhouse-id]",
		Short: "Show fields with device modes and latest readings",
		Args:  cobra.ExactArgs(1),
		RunE:  showFields,
	}

	historyCmd = &cobra.Command{
		Use:   "history [greenhouse-id] [field-index] [channel]",
		Short: "Show readings of one channel, newest first",
		Args:  cobra.ExactArgs(3),
		RunE:  showHistory,
	}

	deleteFieldCmd = &cobra.Command{
		Use:   "delete-field [greenhouse-id] [field-index]",
		Short: "Delete a field and its readings, leaving its index empty",
		Args:  cobra.ExactArgs(2),
		RunE:  deleteField,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE:  showStats,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "./data/plantcare.db", "Database file path")

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")

	rootCmd.AddCommand(greenhousesCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(deleteFieldCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*database.DB, *greenhouse.SQLiteRepository, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("database %s: %w", dbPath, err)
	}
	db, err := database.Open(ctx, database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		return nil, nil, err
	}
	return db, greenhouse.NewSQLiteRepository(db.DB), nil
}

func listGreenhouses(cmd *cobra.Command, _ []string) error {
	db, repo, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := repo.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tLOCATION\tFIELDS\tUPDATED")
	fmt.Fprintln(w, "--\t----\t-----\t--------\t------\t-------")
	for _, g := range list {
		present := 0
		for _, f := range g.Fields {
			if f.Present {
				present++
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			g.ID, g.Name, dash(g.Owner), g.Location, present, len(g.Fields),
			g.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func showFields(cmd *cobra.Command, args []string) error {
	db, repo, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	g, err := repo.Greenhouse(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeFields(cmd.OutOrStdout(), g)
}

func writeFields(out io.Writer, g *greenhouse.Greenhouse) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTEMP\tHUMIDITY\tSOIL\tLIGHT\tFAN\tLED\tPUMP")
	fmt.Fprintln(w, "-----\t----\t--------\t----\t-----\t---\t---\t----")

	for i := range g.Fields {
		f := &g.Fields[i]
		if !f.Present {
			fmt.Fprintf(w, "%d\t(deleted)\t\t\t\t\t\t\n", f.Index)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", f.Index,
			latest(f, greenhouse.ChannelTemperature),
			latest(f, greenhouse.ChannelHumidity),
			latest(f, greenhouse.ChannelSoilMoisture),
			latest(f, greenhouse.ChannelLight),
			deviceSummary(f, greenhouse.DeviceFan),
			deviceSummary(f, greenhouse.DeviceLED),
			deviceSummary(f, greenhouse.DevicePump),
		)
	}
	return w.Flush()
}

func latest(f *greenhouse.Field, ch greenhouse.Channel) string {
	r, ok := f.Latest(ch)
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64) + r.Unit
}

// deviceSummary renders "mode/status", e.g. "automatic/on".
func deviceSummary(f *greenhouse.Field, d greenhouse.Device) string {
	cfg, ok, err := f.DeviceConfig(d)
	if err != nil {
		return "invalid"
	}
	if !ok {
		return "-"
	}
	status := "?"
	if r, ok := f.Latest(d.StatusChannel()); ok {
		status = "off"
		if r.Value > 0 {
			status = "on"
		}
	}
	return string(cfg.Mode) + "/" + status
}

func showHistory(cmd *cobra.Command, args []string) error {
	idx, err := parseIndex(args[1])
	if err != nil {
		return err
	}
	ch := greenhouse.Channel(args[2])
	if !ch.Valid() {
		if ch, _, err = greenhouse.MapChannel(args[2]); err != nil {
			return err
		}
	}

	db, repo, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	readings, err := repo.History(cmd.Context(), greenhouse.HistoryQuery{
		GreenhouseID: args[0],
		FieldIndex:   idx,
		Channel:      ch,
		Limit:        limit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tVALUE\tUNIT")
	fmt.Fprintln(w, "----\t-----\t----")
	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			r.Timestamp.Local().Format("01-02 15:04:05"),
			strconv.FormatFloat(r.Value, 'f', -1, 64), r.Unit)
	}
	return w.Flush()
}

func deleteField(cmd *cobra.Command, args []string) error {
	idx, err := parseIndex(args[1])
	if err != nil {
		return err
	}

	db, repo, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.DeleteField(cmd.Context(), args[0], idx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted field %d of %s\n", idx, args[0])
	return nil
}

func showStats(cmd *cobra.Command, _ []string) error {
	db, _, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	fmt.Fprintln(w, "-----\t----")
	for _, table := range []string{"greenhouses", "fields", "readings"} {
		var count int
		if err := db.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", table, count)
	}

	rows, err := db.QueryContext(cmd.Context(), "SELECT channel, COUNT(*), MAX(recorded_at) FROM readings GROUP BY channel")
	if err != nil {
		return err
	}
	defer rows.Close()

	type channelStat struct {
		channel string
		count   int
		newest  string
	}
	var stats []channelStat
	for rows.Next() {
		var s channelStat
		if err := rows.Scan(&s.channel, &s.count, &s.newest); err != nil {
			return err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].channel < stats[j].channel })

	fmt.Fprintln(w)
	fmt.Fprintln(w, "CHANNEL\tREADINGS\tNEWEST")
	fmt.Fprintln(w, "-------\t--------\t------")
	for _, s := range stats {
		newest := s.newest
		if t, err := time.Parse(time.RFC3339Nano, s.newest); err == nil {
			newest = t.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.channel, s.count, newest)
	}
	return w.Flush()
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("field index must be a non-negative integer, got %q", s)
	}
	return idx, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
