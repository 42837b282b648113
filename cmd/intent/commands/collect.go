package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/intent/internal/contracts"
)

var (
	outputJSON   bool
	signalsSince time.Duration
	signalsLimit int
)

// collectCmd runs one collection cycle for a company
var collectCmd = &cobra.Command{
	Use:   "collect [domain]",
	Short: "회사 signal 즉시 수집",
	Long: `활성화된 모든 source에서 signal을 한 번 수집하고 점수를 출력합니다.
등록되지 않은 회사는 flag 정보로 자동 등록됩니다.

Example:
  go run ./cmd/intent collect acme.com --name Acme --handle github=acme-inc`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

// scoreCmd prints a company's score
var scoreCmd = &cobra.Command{
	Use:   "score [domain]",
	Short: "Intent score 조회",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

// signalsCmd prints recent signals
var signalsCmd = &cobra.Command{
	Use:   "signals [domain]",
	Short: "최근 signal 조회",
	Long: `관측 시각 기준으로 최근 signal을 출력합니다.

Example:
  go run ./cmd/intent signals acme.com --since 168h --limit 50`,
	Args: cobra.ExactArgs(1),
	RunE: runSignals,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(signalsCmd)

	addCompanyFlags(collectCmd)
	for _, cmd := range []*cobra.Command{collectCmd, scoreCmd, signalsCmd} {
		cmd.Flags().BoolVar(&outputJSON, "json", false, "JSON 출력")
	}
	signalsCmd.Flags().DurationVar(&signalsSince, "since", 30*24*time.Hour, "조회 기간")
	signalsCmd.Flags().IntVar(&signalsLimit, "limit", 100, "최대 출력 개수")
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	company, err := ensureCompany(ctx, a, args[0])
	if err != nil {
		return err
	}

	result, err := a.engine.Collect(ctx, company.ID)
	if err != nil {
		return err
	}
	score, err := a.engine.Score(ctx, company.ID)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(map[string]any{"collect": result, "score": score})
	}

	PrintHeader("Collect: " + company.ID)
	PrintKeyValue("Added", fmt.Sprint(result.SignalsAdded), 12)
	PrintKeyValue("Updated", fmt.Sprint(result.SignalsUpdated), 12)
	PrintKeyValue("Dropped", fmt.Sprint(result.Dropped), 12)
	PrintKeyValue("Below floor", fmt.Sprint(result.BelowFloor), 12)
	PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String(), 12)
	for _, f := range result.SourcesFailed {
		PrintWarning(fmt.Sprintf("%s: %s (%s)", f.Source, f.Kind, truncate(f.Error, 80)))
	}
	printScore(score)
	return nil
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	score, err := a.engine.Score(ctx, args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(score)
	}
	printScore(score)
	return nil
}

func runSignals(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	company, err := a.engine.Companies().Get(ctx, args[0])
	if err != nil {
		return err
	}

	since := time.Now().Add(-signalsSince)
	signals := make([]contracts.Signal, 0, signalsLimit)
	for sig, err := range a.engine.RecentSignals(ctx, company.ID, since, 0) {
		if err != nil {
			return err
		}
		signals = append(signals, sig)
		if len(signals) == signalsLimit {
			break
		}
	}

	if outputJSON {
		return printJSON(signals)
	}

	widths := []int{20, 14, 18, 6, 5, 40}
	PrintTableHeader([]string{"OBSERVED", "SOURCE", "CATEGORY", "CONF", "SEEN", "KEY"}, widths)
	for _, s := range signals {
		PrintTableRow([]string{
			s.ObservedAt.Format("2006-01-02 15:04"),
			string(s.Source),
			string(s.Category),
			fmt.Sprintf("%.2f", s.Confidence),
			fmt.Sprint(s.SeenCount),
			truncate(s.DedupKey, 40),
		}, widths)
	}
	fmt.Printf("\n%d signals since %s\n", len(signals), since.Format(time.RFC3339))
	return nil
}

func printScore(score contracts.ScoreResult) {
	PrintHeader(fmt.Sprintf("Score: %s  %.1f  [%s]", score.CompanyID, score.Aggregate, score.Tier))

	widths := []int{18, 8, 8, 8, 8}
	PrintTableHeader([]string{"CATEGORY", "VALUE", "WEIGHT", "POINTS", "SIGNALS"}, widths)
	for _, cat := range contracts.AllCategories() {
		c, ok := score.Components[cat]
		if !ok {
			continue
		}
		PrintTableRow([]string{
			string(cat),
			fmt.Sprintf("%.3f", c.Value),
			fmt.Sprintf("%.2f", c.EffectiveWeight),
			fmt.Sprintf("%.1f", c.Contribution),
			fmt.Sprint(c.SignalCount),
		}, widths)
	}
	PrintSeparator()
	fmt.Printf("Computed at %s (policy %s)\n", score.ComputedAt.Format(time.RFC3339), score.PolicyHash)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
