package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/example/go-skraafoto/skraafoto"
	"github.com/example/go-skraafoto/skraafoto/address"
	"github.com/example/go-skraafoto/skraafoto/download"
	"github.com/example/go-skraafoto/skraafoto/elevation"
	"github.com/example/go-skraafoto/skraafoto/fetch"
	"github.com/example/go-skraafoto/skraafoto/model"
	"github.com/example/go-skraafoto/skraafoto/polygonstore"
	"github.com/example/go-skraafoto/skraafoto/viewer"
)

// credentials collects the service secrets the commands need. They come
// from the environment, optionally seeded from a .env file.
type credentials struct {
	Token       string `env:"SKRAAFOTO_TOKEN"`
	DHMUsername string `env:"DATAFORDELER_USERNAME"`
	DHMPassword string `env:"DATAFORDELER_PASSWORD"`
}

// downloadSettings mirrors the batch downloader's YAML settings file.
type downloadSettings struct {
	CacheDir         string `yaml:"cache_dir"`
	Collection       string `yaml:"collection"`
	Concurrency      int    `yaml:"concurrency"`
	RetryLimit       int    `yaml:"retry_limit"`
	RetryDelay       int    `yaml:"retry_delay"`
	S3CredentialsURL string `yaml:"s3_credentials_url"`
}

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	root := &cli.Command{
		Name:    "skraafotocli",
		Usage:   "Locate, inspect and download Danish oblique aerial photos",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Dataforsyningen API token",
				Sources: cli.EnvVars("SKRAAFOTO_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Override the catalog base URL",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			newSearchCommand(),
			newCollectionsCommand(),
			newSweepCommand(),
			newElevationCommand(),
			newLocateCommand(),
			newDownloadCommand(),
			newAddressCommand(),
			newPolygonCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newSearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the best-matching photo for a coordinate and direction",
		ArgsUsage: "X Y",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "direction",
				Usage:   "Viewing direction (north, south, east, west, nadir)",
				Aliases: []string{"d"},
				Value:   "north",
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Restrict results to a collection (e.g. skraafotos2023)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output format (text or json)",
				Value: "text",
			},
		},
		Action: executeSearch,
	}
}

func executeSearch(ctx context.Context, cmd *cli.Command) error {
	coord, err := parseCoordinateArgs(cmd)
	if err != nil {
		return err
	}
	direction, err := model.ParseDirection(strings.TrimSpace(cmd.String("direction")))
	if err != nil {
		return err
	}

	client := buildCatalogClient(cmd)
	page, err := client.QueryByPoint(ctx, coord, direction, cmd.String("collection"), int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(page.Features) == 0 {
		fmt.Fprintln(os.Stdout, "No photos cover this coordinate.")
		return nil
	}

	switch output := strings.ToLower(strings.TrimSpace(cmd.String("output"))); output {
	case "json":
		return writeJSON(page.Features)
	case "text":
		printItemsTable(page.Features)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

func newCollectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "List the catalog's production collections",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client := buildCatalogClient(cmd)
			collections, err := client.Collections(ctx)
			if err != nil {
				return fmt.Errorf("collections: %w", err)
			}
			for _, coll := range collections {
				fmt.Fprintln(os.Stdout, coll.ID)
			}
			return nil
		},
	}
}

func newSweepCommand() *cli.Command {
	return &cli.Command{
		Name:      "sweep",
		Usage:     "List every photo intersecting a bounding box",
		ArgsUsage: "MINX MINY MAXX MAXY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 4 {
				return fmt.Errorf("sweep: expected MINX MINY MAXX MAXY")
			}
			var bbox model.BoundingBox
			for i := 0; i < 4; i++ {
				value, err := strconv.ParseFloat(cmd.Args().Get(i), 64)
				if err != nil {
					return fmt.Errorf("sweep: parse bbox component %d: %w", i, err)
				}
				bbox[i] = value
			}

			client := buildCatalogClient(cmd)
			it := client.Sweep(bbox)
			count := 0
			for it.Next(ctx) {
				item := it.Item()
				fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", item.ID, item.Properties.Direction, item.Assets.Data.Href)
				count++
			}
			if err := it.Err(); err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(os.Stderr, "%d item(s)\n", count)
			return nil
		},
	}
}

func newElevationCommand() *cli.Command {
	return &cli.Command{
		Name:      "elevation",
		Usage:     "Resolve terrain elevation for a coordinate",
		ArgsUsage: "X Y",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			coord, err := parseCoordinateArgs(cmd)
			if err != nil {
				return err
			}
			creds, err := loadCredentials()
			if err != nil {
				return err
			}
			client := elevation.NewClient(
				elevation.Credentials{Username: creds.DHMUsername, Password: creds.DHMPassword},
				elevation.WithLogger(buildLogger(cmd)),
			)
			kote, err := client.Resolve(ctx, coord)
			if err != nil {
				return fmt.Errorf("elevation: %w", err)
			}
			fmt.Fprintf(os.Stdout, "%.2f\n", kote)
			return nil
		},
	}
}

func newLocateCommand() *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Usage:     "Run the full pipeline: direction fan-out, elevation and projection",
		ArgsUsage: "X Y",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "direction",
				Usage:   "Selected viewing direction",
				Aliases: []string{"d"},
				Value:   "north",
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Restrict queries to a collection",
			},
		},
		Action: executeLocate,
	}
}

func executeLocate(ctx context.Context, cmd *cli.Command) error {
	coord, err := parseCoordinateArgs(cmd)
	if err != nil {
		return err
	}
	direction, err := model.ParseDirection(strings.TrimSpace(cmd.String("direction")))
	if err != nil {
		return err
	}
	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	catalog := buildCatalogClient(cmd)
	dhm := elevation.NewClient(
		elevation.Credentials{Username: creds.DHMUsername, Password: creds.DHMPassword},
		elevation.WithLogger(buildLogger(cmd)),
	)
	orchestrator := viewer.New(catalog, dhm,
		viewer.WithCollection(cmd.String("collection")),
		viewer.WithLogger(buildLogger(cmd)),
	)

	snap, err := orchestrator.Select(ctx, coord, direction)
	if err != nil {
		return fmt.Errorf("locate: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTION\tITEM\tIMAGE")
	for _, dir := range model.Directions() {
		result := snap.Results[dir]
		switch {
		case result.Err != nil:
			fmt.Fprintf(tw, "%s\t(error)\t-\n", dir)
		case result.Item == nil:
			fmt.Fprintf(tw, "%s\t(no coverage)\t-\n", dir)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", dir, result.Item.ID, result.ImageURL)
		}
	}
	tw.Flush()

	if snap.Failure != nil {
		fmt.Fprintf(os.Stderr, "selected direction failed (%d): %s\n", snap.Failure.Code, snap.Failure.Message)
		return nil
	}
	if snap.Elevation != nil {
		fmt.Fprintf(os.Stdout, "elevation: %.2f\n", *snap.Elevation)
	}
	if snap.Pixel != nil {
		fmt.Fprintf(os.Stdout, "pixel: column=%d row=%d (origin bottom-left)\n", snap.Pixel.Column, snap.Pixel.Row)
	}
	return nil
}

func newDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download the assets of the best-matching photo for a coordinate",
		ArgsUsage: "X Y",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "direction",
				Usage:   "Viewing direction",
				Aliases: []string{"d"},
				Value:   "nadir",
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "YAML settings file for download jobs",
				Value: "settings.yaml",
			},
		},
		Action: executeDownload,
	}
}

func executeDownload(ctx context.Context, cmd *cli.Command) error {
	coord, err := parseCoordinateArgs(cmd)
	if err != nil {
		return err
	}
	direction, err := model.ParseDirection(strings.TrimSpace(cmd.String("direction")))
	if err != nil {
		return err
	}
	settings, err := loadDownloadSettings(cmd.String("settings"))
	if err != nil {
		return err
	}
	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	client := buildCatalogClient(cmd)
	page, err := client.QueryByPoint(ctx, coord, direction, settings.Collection, 1)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	item := page.First()
	if item == nil {
		return fmt.Errorf("download: no photo covers %s looking %s", coord.WKT(), direction)
	}

	retry := fetch.DefaultPolicy()
	if settings.RetryLimit > 0 {
		retry = fetch.Policy{MaxAttempts: settings.RetryLimit, Delay: time.Duration(settings.RetryDelay) * time.Second}
	}
	mgr := download.NewManager(download.Config{
		Concurrency:      settings.Concurrency,
		Token:            creds.Token,
		S3CredentialsURL: settings.S3CredentialsURL,
		Retry:            retry,
		Logger:           buildLogger(cmd),
		Progress: func(p download.FileProgress) {
			if p.Total > 0 && p.Downloaded == p.Total {
				fmt.Fprintf(os.Stderr, "finished %s\n", p.FileName)
			}
		},
	})

	destDir := settings.CacheDir
	if destDir == "" {
		destDir = "image_cache"
	}
	httpClient := &http.Client{Timeout: 10 * time.Minute}
	if err := mgr.DownloadItem(ctx, httpClient, *item, destDir); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	fmt.Fprintf(os.Stdout, "saved assets of %s to %s\n", item.ID, destDir)
	return nil
}

func newAddressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Look up Danish street addresses",
		Commands: []*cli.Command{
			{
				Name:      "suggest",
				Usage:     "Autocomplete a free-text address query",
				ArgsUsage: "QUERY",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
					if query == "" {
						return fmt.Errorf("address suggest: a query is required")
					}
					client := buildAddressClient(cmd)
					suggestions, err := client.Autocomplete(ctx, query)
					if err != nil {
						return fmt.Errorf("address suggest: %w", err)
					}
					for _, s := range suggestions {
						fmt.Fprintln(os.Stdout, s.Label)
					}
					return nil
				},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a house address to an EPSG:25832 coordinate",
				ArgsUsage: "ROAD HOUSENUMBER POSTALCODE",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 3 {
						return fmt.Errorf("address resolve: expected ROAD HOUSENUMBER POSTALCODE")
					}
					client := buildAddressClient(cmd)
					coord, err := client.ResolveCoordinates(ctx, address.Address{
						Road:        cmd.Args().Get(0),
						HouseNumber: cmd.Args().Get(1),
						PostalCode:  cmd.Args().Get(2),
					})
					if err != nil {
						return fmt.Errorf("address resolve: %w", err)
					}
					fmt.Fprintf(os.Stdout, "%s\n", coord.WKT())
					return nil
				},
			},
		},
	}
}

func newPolygonCommand() *cli.Command {
	return &cli.Command{
		Name:  "polygon",
		Usage: "Work with drawn polygon collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "connector-url",
				Usage: "Override the PostGIS connector base URL",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "Store polygon rings from a JSON file under a collection name",
				ArgsUsage: "NAME RINGS.json",
				Action:    executePolygonSave,
			},
			{
				Name:      "addresses",
				Usage:     "List the access addresses inside the first ring of a JSON file",
				ArgsUsage: "RINGS.json",
				Action:    executePolygonAddresses,
			},
		},
	}
}

func executePolygonSave(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("polygon save: expected NAME RINGS.json")
	}
	rings, err := loadRings(cmd.Args().Get(1))
	if err != nil {
		return err
	}

	var opts []polygonstore.Option
	if connectorURL := strings.TrimSpace(cmd.String("connector-url")); connectorURL != "" {
		opts = append(opts, polygonstore.WithBaseURL(connectorURL))
	}
	store := polygonstore.NewClient(opts...)
	if err := store.Save(ctx, cmd.Args().Get(0), rings); err != nil {
		return fmt.Errorf("polygon save: %w", err)
	}
	fmt.Fprintf(os.Stdout, "saved %d ring(s) as %q\n", len(rings), cmd.Args().Get(0))
	return nil
}

func executePolygonAddresses(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("polygon addresses: expected RINGS.json")
	}
	rings, err := loadRings(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	if len(rings) == 0 {
		return fmt.Errorf("polygon addresses: the file contains no rings")
	}

	client := buildAddressClient(cmd)
	records, err := client.WithinPolygon(ctx, rings[0])
	if err != nil {
		return fmt.Errorf("polygon addresses: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tX\tY")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\n", rec.Text, rec.X, rec.Y)
	}
	return tw.Flush()
}

func loadRings(path string) ([]polygonstore.Ring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rings: %w", err)
	}
	var rings []polygonstore.Ring
	if err := json.Unmarshal(data, &rings); err != nil {
		return nil, fmt.Errorf("parse rings: %w", err)
	}
	return rings, nil
}

func buildAddressClient(cmd *cli.Command) *address.Client {
	return address.NewClient(
		strings.TrimSpace(cmd.Root().String("token")),
		address.WithLogger(buildLogger(cmd)),
	)
}

func buildCatalogClient(cmd *cli.Command) *skraafoto.Client {
	root := cmd.Root()
	opts := []skraafoto.Option{skraafoto.WithLogger(buildLogger(cmd))}
	if baseURL := strings.TrimSpace(root.String("base-url")); baseURL != "" {
		opts = append(opts, skraafoto.WithBaseURL(baseURL))
	}
	if token := strings.TrimSpace(root.String("token")); token != "" {
		opts = append(opts, skraafoto.WithAuthToken(token))
	}
	return skraafoto.NewClient(opts...)
}

func buildLogger(cmd *cli.Command) *slog.Logger {
	level := slog.LevelInfo
	if cmd.Root().Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadCredentials() (credentials, error) {
	creds, err := env.ParseAs[credentials]()
	if err != nil {
		return credentials{}, fmt.Errorf("parse environment: %w", err)
	}
	return creds, nil
}

func loadDownloadSettings(path string) (downloadSettings, error) {
	var settings downloadSettings
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

func parseCoordinateArgs(cmd *cli.Command) (model.WorldCoordinate, error) {
	if cmd.Args().Len() != 2 {
		return model.WorldCoordinate{}, fmt.Errorf("expected X Y coordinate arguments (EPSG:25832)")
	}
	x, err := strconv.ParseFloat(cmd.Args().Get(0), 64)
	if err != nil {
		return model.WorldCoordinate{}, fmt.Errorf("parse X: %w", err)
	}
	y, err := strconv.ParseFloat(cmd.Args().Get(1), 64)
	if err != nil {
		return model.WorldCoordinate{}, fmt.Errorf("parse Y: %w", err)
	}
	return model.WorldCoordinate{X: x, Y: y}, nil
}

func writeJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printItemsTable(items []model.Item) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIRECTION\tDATETIME\tCOLLECTION\tIMAGE")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			item.Properties.Direction,
			item.Properties.Datetime,
			item.Collection,
			item.Assets.Data.Href,
		)
	}
	tw.Flush()
}
