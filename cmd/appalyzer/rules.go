package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/appalyzer/pkg/matcher"
	"github.com/praetorian-inc/appalyzer/pkg/rule"
	"github.com/praetorian-inc/appalyzer/pkg/types"
)

// patternColumnWidth truncates patterns in the table view.
const patternColumnWidth = 60

var (
	rulesPath    string
	outputFormat string
	checkEngine  string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage detection rules",
	Long:  "Commands for listing and checking detection rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available rules",
	Long:  "Display the detection rules in dispatch order with their patterns",
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile every rule and report invalid patterns",
	Long: `Compile every rule with the chosen regex engine. Invalid rules are skipped
during a scan; this command lists them up front.`,
	RunE: runRulesCheck,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
	rulesListCmd.Flags().StringVarP(&rulesPath, "regex", "r", "", "Custom rules file (JSON or YAML)")
	rulesListCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rulesCheckCmd.Flags().StringVarP(&rulesPath, "regex", "r", "", "Custom rules file (JSON or YAML)")
	rulesCheckCmd.Flags().StringVar(&checkEngine, "engine", "regexp2", "Regex engine: regexp2, re2")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	rules, err := loadRules(rulesPath, "", "")
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	switch outputFormat {
	case "json":
		return outputRulesJSON(cmd, rules)
	case "table":
		return outputRulesTable(cmd, rules)
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	engine, err := matcher.ParseEngine(checkEngine)
	if err != nil {
		return err
	}

	rules, err := loadRules(rulesPath, "", "")
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	s, err := stylesFor(colorMode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	results := rule.Check(rules, engine)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", s.bad.Sprint("FAIL"), r.Name, r.Err)
		} else if verbose {
			fmt.Fprintf(out, "%s %s\n", s.good.Sprint("ok"), r.Name)
		}
	}

	invalid := rule.Invalid(results)
	fmt.Fprintf(out, "%d rules checked with %s, %d invalid\n", len(results), engine, len(invalid))
	if len(invalid) > 0 {
		return fmt.Errorf("%d of %d rules failed to compile", len(invalid), len(results))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func outputRulesJSON(cmd *cobra.Command, rules *types.RuleSet) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(rules.Rules())
}

func outputRulesTable(cmd *cobra.Command, rules *types.RuleSet) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "#\tName\tPattern\n")
	fmt.Fprintf(w, "-\t----\t-------\n")

	for i, r := range rules.Rules() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Name, matcher.TruncateSecret(r.Pattern, patternColumnWidth))
	}

	return nil
}
