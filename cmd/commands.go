package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/anicoll/kegscale-reader/internal/pkg/database"
	"github.com/anicoll/kegscale-reader/internal/pkg/decoder"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
	"github.com/anicoll/kegscale-reader/internal/pkg/registry"
)

// ScalesCommand prints the scales that would be matched by a scan.
func ScalesCommand(ctx *cli.Context) error {
	cfg := configFromContext(ctx)
	file, err := loadScales(cfg)
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	if file.Path != "" {
		fmt.Fprintf(w, "Config: %s\n", file.Path)
	}
	fmt.Fprintf(w, "Calibration: %s\n", file.Calibration.Version)
	for _, s := range file.Skipped {
		fmt.Fprintf(w, "Skipped: %s\n", s)
	}

	scales := registry.Build(file.Scales).Scales()
	if len(scales) == 0 {
		fmt.Fprintln(w, "No scales configured.")
		return nil
	}
	fmt.Fprintln(w, "Configured scales:")
	for _, s := range scales {
		fmt.Fprintf(w, " - %s: %s (%g L)\n", s.DisplayName(), s.Address, s.LiterSize)
	}
	return nil
}

type decodeResult struct {
	Payload    string              `json:"payload"`
	Reading    *model.Reading      `json:"reading,omitempty"`
	Error      string              `json:"error,omitempty"`
	Candidates []decoder.Candidate `json:"candidates,omitempty"`
}

// DecodeCommand decodes hex payloads given as arguments with the configured calibration.
func DecodeCommand(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return cli.Exit("decode needs at least one hex payload", 1)
	}
	file, err := loadScales(configFromContext(ctx))
	if err != nil {
		return err
	}
	dec := decoder.New(file.Calibration)

	enc := json.NewEncoder(ctx.App.Writer)
	enc.SetIndent("", "  ")
	for _, arg := range ctx.Args().Slice() {
		cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(arg)
		payload, err := hex.DecodeString(cleaned)
		if err != nil {
			return fmt.Errorf("payload %q: %w", arg, err)
		}
		res := decodeResult{Payload: hex.EncodeToString(payload)}
		if reading, err := dec.Decode(payload); err != nil {
			res.Error = err.Error()
		} else {
			res.Reading = &reading
		}
		if ctx.Bool("candidates") {
			res.Candidates = dec.Candidates(payload)
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

// LatestCommand prints the most recent stored reading of every scale.
func LatestCommand(ctx *cli.Context) error {
	cfg := configFromContext(ctx)
	if !cfg.DatabaseCfg.Enabled() {
		return cli.Exit("latest needs --database-url", 1)
	}
	db, err := database.Connect(ctx.Context, cfg.DatabaseCfg.URL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			zap.L().Error("failed to close database", zap.Error(err))
		}
	}()

	readings, err := db.GetLatestReadings(ctx.Context)
	if err != nil {
		return err
	}
	return printReadings(ctx.App.Writer, readings)
}

func printReadings(w interface{ Write([]byte) (int, error) }, readings model.StoredReadings) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCALE\tADDRESS\tWEIGHT KG\tTEMP C\tRSSI\tTIME")
	for _, r := range readings {
		temp := "-"
		if r.TemperatureC != nil {
			temp = fmt.Sprintf("%.1f", *r.TemperatureC)
		}
		name := r.Name
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%d\t%s\n", name, r.Address, r.WeightKg, temp, r.RSSI, r.TimeStamp.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
