package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	settingsPath string
	debugMode    bool
	dryRunMode   bool
	indexCount   int
	displayName  string
	endDate      string
	leftGroup    string
	rightGroup   string
	elementStart string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gbf-wiki-bot",
	Short: "Upload game assets to the wiki and maintain the promo templates",
	Long: `Discovers assets on the game CDN, uploads them under canonical file names
with human readable redirects, and updates the promo rotation subtemplates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if debugMode {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// withApp loads settings and environment, wires the app and runs fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	var (
		settings *Settings
		err      error
	)
	if settingsPath != "" {
		// Explicit settings file must exist
		settings, err = loadSettingsRequired(settingsPath)
	} else {
		if err := ensureConfigExists(); err != nil {
			return fmt.Errorf("ensuring config files exist: %w", err)
		}
		settings, err = loadSettings()
	}
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	env, err := LoadEnvironment()
	if err != nil {
		return err
	}
	if dryRunMode {
		env.DryRun = true
	}

	app, err := NewApp(settings, env, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app)
}

func runUploadCommand(cmd *cobra.Command, req UploadRequest) error {
	return withApp(cmd, func(ctx context.Context, app *App) error {
		summary, err := app.Uploads.RunUpload(ctx, req, NewLogSink(app.Logger.Named("progress")))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), FormatSummary(summary))
		return nil
	})
}

var imgUploadCmd = &cobra.Command{
	Use:   "imgupload <itempage|skin|bullet|npc|artifact|summon> <page>",
	Short: "Upload every asset referenced by the templates on a wiki page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		family, err := ParseFamily(args[0])
		if err != nil {
			return err
		}
		if family.Strategy() != DiscoverExtracted {
			return validationErrorf("%s is not read from a page; use its own upload command", family)
		}
		page, err := ValidatePageName(args[1])
		if err != nil {
			return err
		}
		return runUploadCommand(cmd, UploadRequest{Family: family, Page: page})
	},
}

var statusUploadCmd = &cobra.Command{
	Use:   "statusupload <status-id>",
	Short: "Upload a status icon, or a numbered series when the id ends with #",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ValidateStatusID(args[0])
		if err != nil {
			return err
		}
		name, err := optionalName(displayName)
		if err != nil {
			return err
		}
		return runUploadCommand(cmd, UploadRequest{Family: FamilyStatusIcon, ID: id, Name: name, Count: indexCount})
	},
}

var bannerUploadCmd = &cobra.Command{
	Use:   "bannerupload <banner-id>",
	Short: "Upload the numbered gacha banners of a banner id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ValidateBannerID(args[0])
		if err != nil {
			return err
		}
		name, err := optionalName(displayName)
		if err != nil {
			return err
		}
		return runUploadCommand(cmd, UploadRequest{Family: FamilyGachaBanner, ID: id, Name: name, Count: indexCount})
	},
}

var eventUploadCmd = &cobra.Command{
	Use:   "eventupload <event-id>",
	Short: "Upload the numbered banners of an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ValidateBannerID(args[0])
		if err != nil {
			return err
		}
		name, err := optionalName(displayName)
		if err != nil {
			return err
		}
		return runUploadCommand(cmd, UploadRequest{Family: FamilyEventBanner, ID: id, Name: name, Count: indexCount})
	},
}

var itemUploadCmd = &cobra.Command{
	Use:   "itemupload <item-type> <item-id> <item-name>",
	Short: "Upload the square and icon images of one item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType := strings.ToLower(strings.TrimSpace(args[0]))
		if !isItemType(itemType) {
			return validationErrorf("item type must be one of %s", strings.Join(ItemTypes, ", "))
		}
		id, err := ValidateItemID(args[1])
		if err != nil {
			return err
		}
		name, err := ValidateItemName(args[2])
		if err != nil {
			return err
		}
		return runUploadCommand(cmd, UploadRequest{Family: FamilyItem, ItemType: itemType, ID: id, Name: name})
	},
}

var enemyUploadCmd = &cobra.Command{
	Use:   "enemyupload <enemy-id> <enemy-name>",
	Short: "Upload the square and icon images of one enemy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := ValidateItemID(args[0])
		if err != nil {
			return err
		}
		name, err := ValidateItemName(args[1])
		if err != nil {
			return err
		}
		return runUploadCommand(cmd, UploadRequest{Family: FamilyEnemy, ID: id, Name: name})
	},
}

var rotationCmd = &cobra.Command{
	Use:   "rotation <single|double|element|element-double>",
	Short: "Update the promo banner subtemplates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := ParseRotationMode(args[0])
		if err != nil {
			return err
		}
		if mode.Command() != CommandPromo {
			return validationErrorf("use the rateup command for %s", mode)
		}
		return runRotationCommand(cmd, mode)
	},
}

var rateUpCmd = &cobra.Command{
	Use:   "rateup",
	Short: "Update the rate-up subtemplates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRotationCommand(cmd, ModeRateUp)
	},
}

func runRotationCommand(cmd *cobra.Command, mode RotationMode) error {
	return withApp(cmd, func(ctx context.Context, app *App) error {
		loc, err := app.Settings.Location()
		if err != nil {
			return err
		}
		params, err := rotationParams(mode, loc)
		if err != nil {
			return err
		}
		result, err := app.Rotations.RunRotation(ctx, params, NewLogSink(app.Logger.Named("progress")))
		if len(result.PagesUpdated) > 0 || err == nil {
			fmt.Fprint(cmd.OutOrStdout(), FormatRotation(result))
		}
		return err
	})
}

func rotationParams(mode RotationMode, loc *time.Location) (RotationParams, error) {
	end, err := parseEndDate(endDate, loc)
	if err != nil {
		return RotationParams{}, err
	}
	left, err := parseGroup(leftGroup)
	if err != nil {
		return RotationParams{}, err
	}
	p := RotationParams{Mode: mode, End: end, Left: left}
	if rightGroup != "" {
		right, err := parseGroup(rightGroup)
		if err != nil {
			return RotationParams{}, err
		}
		p.Right = &right
	}
	if elementStart != "" {
		if p.ElementStart, err = ParseElement(elementStart); err != nil {
			return RotationParams{}, err
		}
	}
	return p, nil
}

// parseEndDate accepts "2006-01-02 15:04" in loc or an RFC 3339 timestamp
func parseEndDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, validationErrorf("--end is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, validationErrorf("end date %q: want YYYY-MM-DD HH:MM", s)
	}
	return t, nil
}

// parseGroup reads "id" or "id:count"
func parseGroup(s string) (BannerGroup, error) {
	raw, countStr, hasCount := strings.Cut(strings.TrimSpace(s), ":")
	id, err := ValidateBannerID(raw)
	if err != nil {
		return BannerGroup{}, err
	}
	g := BannerGroup{ID: id}
	if hasCount {
		n, err := strconv.Atoi(countStr)
		if err != nil || n < 1 {
			return BannerGroup{}, validationErrorf("banner count %q must be a positive number", countStr)
		}
		g.Count = n
	}
	return g, nil
}

func optionalName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	return ValidatePageName(name)
}

var previewCmd = &cobra.Command{
	Use:   "preview <page>",
	Short: "Render a wiki page as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			html, err := app.Client.ParsePage(ctx, args[0])
			if err != nil {
				return err
			}
			markdown, err := md.NewConverter("", true, nil).ConvertString(html)
			if err != nil {
				return fmt.Errorf("converting %s to markdown: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), markdown)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to a settings.yaml file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRunMode, "dry-run", false, "Log wiki writes instead of performing them")

	for _, c := range []*cobra.Command{statusUploadCmd, bannerUploadCmd, eventUploadCmd} {
		c.Flags().IntVar(&indexCount, "count", 0, "Number of indices to upload without probing")
		c.Flags().StringVar(&displayName, "name", "", "Display name used for redirect titles")
	}

	for _, c := range []*cobra.Command{rotationCmd, rateUpCmd} {
		c.Flags().StringVar(&endDate, "end", "", "End of the promo, YYYY-MM-DD HH:MM in the rotation timezone")
		c.Flags().StringVar(&leftGroup, "banner", "", "Banner id, optionally id:count")
		_ = c.MarkFlagRequired("end")
		_ = c.MarkFlagRequired("banner")
	}
	rotationCmd.Flags().StringVar(&rightGroup, "right", "", "Second banner id for double modes, optionally id:count")
	rotationCmd.Flags().StringVar(&elementStart, "element", "", "First element of an element rotation")

	rootCmd.AddCommand(imgUploadCmd, statusUploadCmd, bannerUploadCmd, eventUploadCmd,
		itemUploadCmd, enemyUploadCmd, rotationCmd, rateUpCmd, previewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
