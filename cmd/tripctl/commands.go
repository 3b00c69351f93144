package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"tripplanner/internal/cache"
	"tripplanner/internal/logger"
	"tripplanner/internal/route"
)

// newApp builds the tripctl command tree. Results are written to w.
func newApp(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "tripctl",
		Usage:  "offline route tools for trip planner data",
		Writer: w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "optimize",
				Usage:     "order locations into a nearest-neighbour tour",
				UsageText: "tripctl optimize --input locations.json",
				Flags: []cli.Flag{
					inputFlag(),
				},
				Action: optimizeAction,
			},
			{
				Name:      "path",
				Usage:     "find the shortest path between two locations",
				UsageText: "tripctl path --input locations.json --from ID --to ID",
				Flags: []cli.Flag{
					inputFlag(),
					&cli.IntFlag{Name: "from", Usage: "start location id", Required: true},
					&cli.IntFlag{Name: "to", Usage: "goal location id", Required: true},
				},
				Action: pathAction,
			},
			{
				Name:      "snapshot",
				Usage:     "inspect a cache snapshot file",
				UsageText: "tripctl snapshot --file trips.json [--capacity N]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "snapshot file", Required: true},
					&cli.IntFlag{Name: "capacity", Usage: "cache capacity used to load the snapshot", Value: 100},
				},
				Action: snapshotAction,
			},
		},
	}
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    "JSON array of locations",
		Required: true,
	}
}

func newLogger(cmd *cli.Command) *zap.Logger {
	log, err := logger.NewConsole(cmd.String("log-level"))
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func readLocations(path string) ([]route.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations: %w", err)
	}
	var locs []route.Location
	if err := json.Unmarshal(data, &locs); err != nil {
		return nil, fmt.Errorf("failed to parse locations %s: %w", path, err)
	}
	return locs, nil
}

func optimizeAction(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd)
	defer log.Sync()

	locs, err := readLocations(cmd.String("input"))
	if err != nil {
		return err
	}

	start := time.Now()
	tour, err := route.NewOptimizer().Optimize(locs)
	if err != nil {
		return err
	}
	log.Debug("Optimized route", zap.Int("stops", len(tour)), zap.Duration("took", time.Since(start)))

	w := cmd.Root().Writer
	printRoute(w, tour)
	fmt.Fprintf(w, "total distance: %.3f\n", route.TotalDistance(tour))
	return nil
}

func pathAction(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd)
	defer log.Sync()

	locs, err := readLocations(cmd.String("input"))
	if err != nil {
		return err
	}

	from, to := int64(cmd.Int("from")), int64(cmd.Int("to"))
	finder := route.NewPathFinder(route.NewGraph(locs))
	log.Debug("Built route graph", zap.Int("locations", finder.Graph().Len()))

	path := finder.FindPath(from, to)
	if len(path) == 0 {
		return fmt.Errorf("no path from %d to %d", from, to)
	}

	w := cmd.Root().Writer
	printRoute(w, path)
	fmt.Fprintf(w, "distance: %.3f\n", route.TotalDistance(path))
	return nil
}

func snapshotAction(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd)
	defer log.Sync()

	path := cmd.String("file")
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	if info.IsDir() {
		return errors.New("snapshot path is a directory")
	}

	c, err := cache.NewFileCache(int(cmd.Int("capacity")), path, cache.JSONCodec[json.RawMessage](), log)
	if err != nil {
		return err
	}

	stats := c.Stats()
	w := cmd.Root().Writer
	fmt.Fprintf(w, "snapshot: %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	fmt.Fprintf(w, "entries: %d/%d (%.0f%% full)\n", stats.Size, stats.Capacity, stats.Utilization*100)
	if stats.Size == 0 {
		return nil
	}
	fmt.Fprintf(w, "oldest entry: %s\n", humanize.Time(time.Now().Add(-stats.OldestItemAge)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLAST ACCESS\tSIZE")
	entries := c.Entries()
	// Most recently used first.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, humanize.Time(e.AccessedAt), humanize.Bytes(uint64(len(e.Value))))
	}
	return tw.Flush()
}

func printRoute(w io.Writer, locs []route.Location) {
	for i, loc := range locs {
		fmt.Fprintf(w, "%d. %s (id=%d) %.5f,%.5f\n", i+1, loc.Name, loc.ID, loc.Latitude, loc.Longitude)
	}
}
